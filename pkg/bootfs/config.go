package bootfs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

// Params are the values pointed at by the boot configuration.
type Params struct {
	RootUUID string
	FsType   string
	Flags    string
	// DTB relative to the dtb directory, e.g. rockchip/rk3568-nanopi-r5s.dtb
	DTB string
}

type rewriter struct {
	file    string
	rewrite func(content string, p Params) string
}

var rewriters = []rewriter{
	{"armbianEnv.txt", rewriteEnv},
	{"uEnv.txt", rewriteUEnv},
	{filepath.Join("extlinux", "extlinux.conf"), rewriteExtlinux},
}

// RewriteConfigs updates every known boot config found in dir, returning the rewritten ones.
func RewriteConfigs(fs vfs.FS, dir string, p Params) ([]string, error) {
	var done []string
	for _, r := range rewriters {
		path := filepath.Join(dir, r.file)
		b, err := fs.ReadFile(path)
		if err != nil {
			continue
		}
		if err := fs.WriteFile(path, []byte(r.rewrite(string(b), p)), 0o644); err != nil {
			return done, fmt.Errorf("rewriting %s: %w", path, err)
		}
		internalUtils.Log.Debug().Str("what", path).Msg("Rewrote boot config")
		done = append(done, path)
	}
	return done, nil
}

// armbianEnv.txt style, one key=value per line.
func rewriteEnv(content string, p Params) string {
	values := [][2]string{
		{"rootdev", "UUID=" + p.RootUUID},
		{"rootfstype", p.FsType},
		{"rootflags", p.Flags},
		{"fdtfile", p.DTB},
	}
	lines := splitLines(content)
	for _, kv := range values {
		found := false
		for i, l := range lines {
			if strings.HasPrefix(strings.TrimSpace(l), kv[0]+"=") {
				lines[i] = kv[0] + "=" + kv[1]
				found = true
			}
		}
		if !found {
			lines = append(lines, kv[0]+"="+kv[1])
		}
	}
	return joinLines(lines)
}

var (
	uenvAppend = regexp.MustCompile(`^(\s*APPEND=)(.*)$`)
	uenvFDT    = regexp.MustCompile(`^(\s*FDT=).*$`)
)

// uEnv.txt style, LINUX= INITRD= FDT= APPEND= variables.
func rewriteUEnv(content string, p Params) string {
	lines := splitLines(content)
	for i, l := range lines {
		if m := uenvAppend.FindStringSubmatch(l); m != nil {
			lines[i] = m[1] + rewriteArgs(m[2], p)
			continue
		}
		if m := uenvFDT.FindStringSubmatch(l); m != nil {
			lines[i] = m[1] + "/dtb/" + p.DTB
		}
	}
	return joinLines(lines)
}

var (
	extlinuxAppend = regexp.MustCompile(`^(\s*append\s+)(.*)$`)
	extlinuxFDT    = regexp.MustCompile(`^(\s*(?:fdt|devicetree)\s+).*$`)
)

func rewriteExtlinux(content string, p Params) string {
	lines := splitLines(content)
	for i, l := range lines {
		if m := extlinuxAppend.FindStringSubmatch(l); m != nil {
			lines[i] = m[1] + rewriteArgs(m[2], p)
			continue
		}
		if m := extlinuxFDT.FindStringSubmatch(l); m != nil {
			lines[i] = m[1] + "/dtb/" + p.DTB
		}
	}
	return joinLines(lines)
}

// rewriteArgs sets root, rootfstype and rootflags on a kernel command line.
func rewriteArgs(cmdline string, p Params) string {
	args := strings.Fields(cmdline)
	args = setArg(args, "root", "UUID="+p.RootUUID)
	args = setArg(args, "rootfstype", p.FsType)
	args = setArg(args, "rootflags", p.Flags)
	return strings.Join(args, " ")
}

func setArg(args []string, key, value string) []string {
	for i, a := range args {
		if strings.HasPrefix(a, key+"=") {
			args[i] = key + "=" + value
			return args
		}
	}
	return append(args, key+"="+value)
}

func splitLines(content string) []string {
	return strings.Split(strings.TrimRight(content, "\n"), "\n")
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}
