package op

import (
	"github.com/containerd/containerd/mount"
	"github.com/moby/sys/mountinfo"
	"github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
)

// Mounter is the mount subsystem as seen by the install steps.
type Mounter interface {
	Mount(m mount.Mount, target string) error
	Unmount(target string) error
	Mounted(target string) (bool, error)
	MountPoints(source string) ([]string, error)
}

// SystemMounter mounts for real.
type SystemMounter struct{}

func (SystemMounter) Mount(m mount.Mount, target string) error {
	return mount.All([]mount.Mount{m}, target)
}

func (SystemMounter) Unmount(target string) error {
	return mount.UnmountAll(target, 0)
}

func (SystemMounter) Mounted(target string) (bool, error) {
	return mountinfo.Mounted(target)
}

func (SystemMounter) MountPoints(source string) ([]string, error) {
	infos, err := mountinfo.GetMounts(func(i *mountinfo.Info) (bool, bool) {
		return i.Source != source, false
	})
	if err != nil {
		return nil, err
	}
	var points []string
	for _, i := range infos {
		points = append(points, i.Mountpoint)
	}
	return points, nil
}

type MountOperation struct {
	MountOption     mount.Mount
	Target          string
	PrepareCallback func() error
}

func (m MountOperation) Run(mounter Mounter) error {
	// Add context to sublogger
	l := internalUtils.Log.With().Str("what", m.MountOption.Source).Str("where", m.Target).Str("type", m.MountOption.Type).Strs("options", m.MountOption.Options).Logger()

	if m.PrepareCallback != nil {
		if err := m.PrepareCallback(); err != nil {
			l.Warn().Err(err).Msg("executing mount callback")
			return err
		}
	}

	mounted, err := mounter.Mounted(m.Target)
	if err != nil {
		l.Warn().Err(err).Msg("checking mount status")
		return err
	}
	if mounted {
		l.Debug().Msg("Already mounted")
		return constants.ErrAlreadyMounted
	}
	l.Debug().Msg("mount ready")
	return mounter.Mount(m.MountOption, m.Target)
}

// EnsureUnmounted unmounts the device from wherever it is mounted.
func EnsureUnmounted(mounter Mounter, device string) error {
	points, err := mounter.MountPoints(device)
	if err != nil {
		return err
	}
	for _, p := range points {
		internalUtils.Log.Debug().Str("what", device).Str("where", p).Msg("Unmounting")
		if err := mounter.Unmount(p); err != nil {
			return err
		}
	}
	return nil
}
