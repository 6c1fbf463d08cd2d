// Package bootfs fills the FAT32 boot partition from the live /boot.
package bootfs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/otiai10/copy"
	"github.com/twpayne/go-vfs/v4"
)

// emmcScripts maps the emmc flavoured boot scripts to the name u-boot looks for.
var emmcScripts = map[string]string{
	"boot-emmc.scr": "boot.scr",
	"boot-emmc.cmd": "boot.cmd",
}

type Populator struct {
	FS      vfs.FS
	Runner  internalUtils.Runner
	Mounter op.Mounter
	Scratch *op.Scratch
	// Source is the live boot tree, /boot.
	Source string
}

// Populate formats device, copies the boot tree on it and points it at the new root.
func (p *Populator) Populate(device string, params Params) error {
	if err := op.EnsureUnmounted(p.Mounter, device); err != nil {
		return err
	}
	if err := op.Format(p.Runner, device, op.BootFormat()); err != nil {
		return err
	}
	if err := p.Scratch.Mount(device, constants.BootFsType, nil); err != nil {
		return err
	}

	if err := CopyTree(p.FS, p.Source, p.Scratch.Dir, constants.WindowsArtifact); err != nil {
		return err
	}
	rewritten, err := RewriteConfigs(p.FS, p.Scratch.Dir, params)
	if err != nil {
		return err
	}
	if len(rewritten) == 0 {
		internalUtils.Log.Warn().Str("where", p.Source).Msg("No boot config found to rewrite")
	}
	if err := RenameEMMCScripts(p.FS, p.Scratch.Dir); err != nil {
		return err
	}

	return p.Scratch.Unmount()
}

// CopyTree copies src into dst skipping the top level entries named in skip.
// Owners are not kept, FAT has none.
func CopyTree(fs vfs.FS, src, dst string, skip ...string) error {
	rawSrc, err := fs.RawPath(src)
	if err != nil {
		return err
	}
	rawDst, err := fs.RawPath(dst)
	if err != nil {
		return err
	}
	skipped := map[string]bool{}
	for _, s := range skip {
		skipped[filepath.Join(rawSrc, s)] = true
	}

	err = copy.Copy(rawSrc, rawDst, copy.Options{
		Skip: func(_ os.FileInfo, path, _ string) (bool, error) {
			return skipped[path], nil
		},
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Deep
		},
		PreserveTimes: true,
	})
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

// RenameEMMCScripts moves boot-emmc.* over the generic boot scripts.
func RenameEMMCScripts(fs vfs.FS, dir string) error {
	for from, to := range emmcScripts {
		src := filepath.Join(dir, from)
		if _, err := fs.Stat(src); err != nil {
			continue
		}
		if err := fs.Rename(src, filepath.Join(dir, to)); err != nil {
			return fmt.Errorf("renaming %s: %w", src, err)
		}
		internalUtils.Log.Debug().Str("what", from).Str("to", to).Msg("Renamed emmc boot script")
	}
	return nil
}
