// Package device finds the disk the live system runs from and the eMMC to install to.
package device

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/moby/sys/mountinfo"
	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

var emmcDisk = regexp.MustCompile(`^mmcblk\d+$`)

// Finder inspects mounts and block devices. Mounts and Disks can be replaced in tests.
type Finder struct {
	FS     vfs.FS
	Mounts func() ([]*mountinfo.Info, error)
	Disks  func() ([]string, error)
}

func NewFinder(fs vfs.FS) *Finder {
	return &Finder{
		FS: fs,
		Mounts: func() ([]*mountinfo.Info, error) {
			return mountinfo.GetMounts(nil)
		},
		Disks: GhwDisks,
	}
}

// RootDisk returns the disk name backing the live system, looking at /, /overlay and /rom in that order.
func (f *Finder) RootDisk() (string, error) {
	mounts, err := f.Mounts()
	if err != nil {
		return "", fmt.Errorf("reading mount table: %w", err)
	}
	for _, candidate := range constants.RootMountCandidates() {
		for _, m := range mounts {
			if m.Mountpoint != candidate || !strings.HasPrefix(m.Source, "/dev/") {
				continue
			}
			disk := internalUtils.DiskName(m.Source)
			internalUtils.Log.Debug().Str("where", candidate).Str("what", m.Source).Str("disk", disk).Msg("Found root device")
			return disk, nil
		}
	}
	return "", fmt.Errorf("%w: no block device mounted on %s", constants.ErrDeviceNotFound, strings.Join(constants.RootMountCandidates(), ", "))
}

// RunningFromEMMC reports whether the root disk is itself an eMMC with boot partitions.
func (f *Finder) RunningFromEMMC(rootDisk string) bool {
	return f.hasBoot0(rootDisk)
}

// EMMC returns the disk to install to: the one exposing a boot0 partition,
// or any other mmcblk disk that is not the root disk.
func (f *Finder) EMMC(rootDisk string) (string, error) {
	disks, err := f.Disks()
	if err != nil {
		return "", fmt.Errorf("listing disks: %w", err)
	}

	var candidates []string
	for _, d := range disks {
		if d == rootDisk || !emmcDisk.MatchString(d) {
			continue
		}
		candidates = append(candidates, d)
	}

	for _, d := range candidates {
		if f.hasBoot0(d) {
			internalUtils.Log.Debug().Str("disk", d).Msg("Found emmc by boot0")
			return d, nil
		}
	}
	if len(candidates) > 0 {
		internalUtils.Log.Debug().Str("disk", candidates[0]).Msg("Found emmc by name")
		return candidates[0], nil
	}
	return "", fmt.Errorf("%w: no emmc besides %s", constants.ErrDeviceNotFound, rootDisk)
}

func (f *Finder) hasBoot0(disk string) bool {
	_, err := f.FS.Stat(filepath.Join("/dev", disk+"boot0"))
	return err == nil
}

// GhwDisks lists whole disks, eMMC hardware partitions (boot0, boot1, rpmb) are not disks.
func GhwDisks() ([]string, error) {
	blk, err := ghw.Block(ghw.WithDisableWarnings())
	if err != nil {
		return nil, err
	}
	var disks []string
	for _, d := range blk.Disks {
		if strings.Contains(d.Name, "boot") || strings.HasSuffix(d.Name, "rpmb") {
			continue
		}
		disks = append(disks, d.Name)
	}
	return disks, nil
}

// GhwPartitions lists the partition names of disk, e.g. mmcblk0p1.
func GhwPartitions(disk string) ([]string, error) {
	blk, err := ghw.Block(ghw.WithDisableWarnings())
	if err != nil {
		return nil, err
	}
	for _, d := range blk.Disks {
		if d.Name != disk {
			continue
		}
		var parts []string
		for _, p := range d.Partitions {
			parts = append(parts, p.Name)
		}
		return parts, nil
	}
	return nil, fmt.Errorf("%w: %s", constants.ErrDeviceNotFound, disk)
}
