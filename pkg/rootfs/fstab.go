package rootfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/containerd/containerd/mount"
	"github.com/deniswernert/go-fstab"
	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

const tmpfsEntry = "#tmpfs /tmp tmpfs defaults,nosuid 0 0"

// Fstab returns the active entries of the installed system: root and boot.
func Fstab(rootUUID string) fstab.Mounts {
	root := internalUtils.MountToFstab(mount.Mount{
		Type:    constants.RootFsType,
		Source:  "UUID=" + rootUUID,
		Options: []string{constants.RootMountOpts},
	})
	root.File = "/"
	root.PassNo = 1

	boot := internalUtils.MountToFstab(mount.Mount{
		Type:    constants.BootFsType,
		Source:  "LABEL=" + constants.BootLabel,
		Options: []string{"defaults"},
	})
	boot.File = "/boot"
	boot.PassNo = 2

	return fstab.Mounts{root, boot}
}

// WriteFstab replaces root/etc/fstab.
func WriteFstab(fs vfs.FS, root, rootUUID string) error {
	var b strings.Builder
	for _, m := range Fstab(rootUUID) {
		b.WriteString(m.String() + "\n")
	}
	b.WriteString(tmpfsEntry + "\n")

	path := filepath.Join(root, "etc", "fstab")
	if err := internalUtils.CreateIfNotExists(fs, filepath.Dir(path)); err != nil {
		return err
	}
	return fs.WriteFile(path, []byte(b.String()), 0o644)
}

var uciFstab = template.Must(template.New("fstab").Parse(`config global
	option anon_swap '0'
	option anon_mount '1'
	option auto_swap '0'
	option auto_mount '1'
	option delay_root '5'
	option check_fs '0'

config mount
	option target '/overlay'
	option uuid '{{ .RootUUID }}'
	option enabled '1'
	option enabled_fsck '1'
	option fstype '{{ .RootFsType }}'
	option options '{{ .RootOptions }}'

config mount
	option target '/boot'
	option label '{{ .BootLabel }}'
	option enabled '1'
	option enabled_fsck '1'
	option fstype '{{ .BootFsType }}'
`))

// WriteUCIFstab replaces root/etc/config/fstab, the mount config of the system itself.
func WriteUCIFstab(fs vfs.FS, root, rootUUID string) error {
	var b bytes.Buffer
	err := uciFstab.Execute(&b, map[string]string{
		"RootUUID":    rootUUID,
		"RootFsType":  constants.RootFsType,
		"RootOptions": constants.RootMountOpts,
		"BootLabel":   constants.BootLabel,
		"BootFsType":  constants.BootFsType,
	})
	if err != nil {
		return err
	}

	path := filepath.Join(root, "etc", "config", "fstab")
	if err := internalUtils.CreateIfNotExists(fs, filepath.Dir(path)); err != nil {
		return err
	}
	return fs.WriteFile(path, b.Bytes(), 0o644)
}

var dataRoot = regexp.MustCompile(`(?m)^(\s*option\s+data_root\s+).*$`)

// RewriteDockerd points the docker data_root at dir when root/etc/config/dockerd exists.
func RewriteDockerd(fs vfs.FS, root, dir string) error {
	path := filepath.Join(root, "etc", "config", "dockerd")
	b, err := fs.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	out := dataRoot.ReplaceAllString(string(b), fmt.Sprintf("${1}'%s'", dir))
	return fs.WriteFile(path, []byte(out), 0o644)
}
