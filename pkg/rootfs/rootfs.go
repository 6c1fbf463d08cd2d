// Package rootfs fills the btrfs root partition from the live root and prepares the spare ones.
package rootfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/openwrt-rk/emmc-install/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
)

type Populator struct {
	FS      vfs.FS
	Runner  internalUtils.Runner
	Mounter op.Mounter
	Scratch *op.Scratch
	// Source is the live root, /.
	Source   string
	Dirs     []string
	Skeleton []string
}

// Populate formats partition 2 of disk and copies the live system on it.
func (p *Populator) Populate(disk string, uuids schema.UUIDs) error {
	device := internalUtils.PartitionDevice(disk, 2)
	if err := op.EnsureUnmounted(p.Mounter, device); err != nil {
		return err
	}
	if err := op.Format(p.Runner, device, op.BtrfsFormat(constants.RootLabel, uuids.Root)); err != nil {
		return err
	}
	if err := p.Scratch.Mount(device, constants.RootFsType, []string{constants.RootMountOpts}); err != nil {
		return err
	}
	root := p.Scratch.Dir

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create etc subvolume", func() error { return p.subvolume(root) }},
		{"create skeleton", func() error { return p.skeleton(root) }},
		{"copy live root", func() error { return p.copyRoot(root) }},
		{"link compat dirs", func() error { return p.links(root) }},
		{"write fstab", func() error { return WriteFstab(p.FS, root, uuids.Root) }},
		{"write mount config", func() error { return WriteUCIFstab(p.FS, root, uuids.Root) }},
		{"prepare data mounts", func() error { return p.dataMounts(root, disk) }},
		{"snapshot etc", func() error { return p.snapshot(root) }},
	}
	for _, s := range steps {
		internalUtils.Log.Info().Str("where", root).Msg(s.name)
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	return p.Scratch.Unmount()
}

// FormatSpare creates the empty secondary root and shared data filesystems.
func (p *Populator) FormatSpare(disk string, uuids schema.UUIDs) error {
	for _, part := range []struct {
		n           int
		label, uuid string
	}{
		{3, constants.SpareLabel, uuids.Spare},
		{4, constants.SharedLabel, uuids.Shared},
	} {
		device := internalUtils.PartitionDevice(disk, part.n)
		if err := op.EnsureUnmounted(p.Mounter, device); err != nil {
			return err
		}
		if err := op.Format(p.Runner, device, op.BtrfsFormat(part.label, part.uuid)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Populator) subvolume(root string) error {
	_, err := p.Runner.Run("btrfs", "subvolume", "create", p.raw(root, constants.EtcSubvolume))
	return err
}

func (p *Populator) skeleton(root string) error {
	for _, d := range p.Skeleton {
		if err := vfs.MkdirAll(p.FS, filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// copyRoot streams the top level dirs through tar, keeping device nodes, links and permissions.
// Extended attributes are kept too when the tar of the live system knows about them.
func (p *Populator) copyRoot(root string) error {
	var dirs []string
	for _, d := range p.Dirs {
		if _, err := p.FS.Lstat(filepath.Join(p.Source, d)); err != nil {
			internalUtils.Log.Debug().Str("what", d).Msg("Not on the live root, skipping")
			continue
		}
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("nothing to copy from %s", p.Source)
	}

	src := []string{"tar", "-C", p.raw(p.Source)}
	dst := []string{"tar", "-C", p.raw(root)}
	if p.tarXattrs() {
		src = append(src, "--xattrs")
		dst = append(dst, "--xattrs", "--xattrs-include=*")
	}
	src = append(append(src, "-cf", "-"), dirs...)
	dst = append(dst, "-xpf", "-")
	_, err := p.Runner.Pipe(src, dst)
	return err
}

// tarXattrs reports whether tar is GNU tar with xattrs support, busybox tar has none.
func (p *Populator) tarXattrs() bool {
	out, err := p.Runner.Run("tar", "--help")
	return err == nil && strings.Contains(out, "--xattrs-include")
}

func (p *Populator) links(root string) error {
	for name, target := range map[string]string{"lib64": "lib", "var": "/tmp"} {
		if err := forceSymlink(p.FS, target, filepath.Join(root, name)); err != nil {
			return err
		}
	}
	return nil
}

// dataMounts prepares the mount points of partitions 3 and 4 and moves docker storage to 4.
func (p *Populator) dataMounts(root, disk string) error {
	for _, n := range []int{3, 4} {
		dir := filepath.Join(root, "mnt", filepath.Base(internalUtils.PartitionDevice(disk, n)))
		if err := vfs.MkdirAll(p.FS, dir, 0o755); err != nil {
			return err
		}
	}

	dockerData := internalUtils.AppendSlash(filepath.Join("/mnt", filepath.Base(internalUtils.PartitionDevice(disk, 4)), constants.DockerDir))
	if err := vfs.MkdirAll(p.FS, filepath.Join(root, "opt"), 0o755); err != nil {
		return err
	}
	if err := forceSymlink(p.FS, dockerData, filepath.Join(root, "opt", constants.DockerDir)); err != nil {
		return err
	}
	return RewriteDockerd(p.FS, root, dockerData)
}

func (p *Populator) snapshot(root string) error {
	_, err := p.Runner.Run("btrfs", "subvolume", "snapshot", "-r", p.raw(root, constants.EtcSubvolume), p.raw(root, constants.EtcSnapshot))
	return err
}

// raw translates a path of the vfs into the one seen by external tools.
func (p *Populator) raw(path ...string) string {
	joined := filepath.Join(path...)
	if r, err := p.FS.RawPath(joined); err == nil {
		return r
	}
	return joined
}

func forceSymlink(fs vfs.FS, target, link string) error {
	if _, err := fs.Lstat(link); err == nil {
		if err := fs.RemoveAll(link); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return fs.Symlink(target, link)
}
