package op

import (
	"fmt"

	"github.com/containerd/containerd/mount"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/twpayne/go-vfs/v4"
)

// Scratch is the single temporary mount point reused for every partition.
// It never holds more than one mount.
type Scratch struct {
	Dir     string
	fs      vfs.FS
	mounter Mounter
	device  string
}

func NewScratch(fs vfs.FS, dir string, mounter Mounter) *Scratch {
	return &Scratch{Dir: dir, fs: fs, mounter: mounter}
}

// Device returns the device currently mounted, empty if none.
func (s *Scratch) Device() string {
	return s.device
}

// Mount mounts device on the scratch dir.
func (s *Scratch) Mount(device, fsType string, options []string) error {
	if s.device != "" {
		return fmt.Errorf("mounting %s on %s: %s still mounted", device, s.Dir, s.device)
	}

	op := MountOperation{
		MountOption: mount.Mount{Type: fsType, Source: device, Options: options},
		Target:      s.Dir,
		PrepareCallback: func() error {
			return internalUtils.CreateIfNotExists(s.fs, s.Dir)
		},
	}
	if err := op.Run(s.mounter); err != nil {
		return fmt.Errorf("mounting %s on %s: %w", device, s.Dir, err)
	}
	s.device = device
	return nil
}

// Unmount syncs and releases the scratch dir.
func (s *Scratch) Unmount() error {
	if s.device == "" {
		return nil
	}
	internalUtils.Sync()
	if err := s.mounter.Unmount(s.Dir); err != nil {
		return fmt.Errorf("unmounting %s from %s: %w", s.device, s.Dir, err)
	}
	internalUtils.Log.Debug().Str("what", s.device).Str("where", s.Dir).Msg("Unmounted")
	s.device = ""
	return nil
}
