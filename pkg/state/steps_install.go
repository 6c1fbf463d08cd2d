package state

import (
	"context"

	cnst "github.com/openwrt-rk/emmc-install/internal/constants"
	"github.com/openwrt-rk/emmc-install/pkg/bootfs"
	"github.com/openwrt-rk/emmc-install/pkg/partition"
	"github.com/openwrt-rk/emmc-install/pkg/rootfs"
	"github.com/spectrocloud-labs/herd"
)

// Destructive steps, each one depends on the previous.

// PartitionDagStep wipes the target and writes the new table and bootloader.
func (s *State) PartitionDagStep(g *herd.Graph, deps ...string) error {
	return g.Add(cnst.OpPartition,
		herd.WithDeps(deps...),
		herd.WithCallback(s.step(cnst.OpPartition, func(_ context.Context) error {
			m := &partition.Manager{
				FS:           s.FS,
				Runner:       s.Runner,
				Mounter:      s.Mounter,
				Layout:       s.Layout,
				Partitions:   s.Partitions,
				WaitAttempts: s.WaitAttempts,
				WaitDelay:    s.WaitDelay,
			}
			return m.Apply(s.Target, s.Platform)
		})))
}

// CopyBootDagStep fills partition 1 from the live /boot.
func (s *State) CopyBootDagStep(g *herd.Graph, deps ...string) error {
	return g.Add(cnst.OpCopyBoot,
		herd.WithDeps(deps...),
		herd.WithCallback(s.step(cnst.OpCopyBoot, func(_ context.Context) error {
			p := &bootfs.Populator{FS: s.FS, Runner: s.Runner, Mounter: s.Mounter, Scratch: s.scratch, Source: s.BootSource}
			return p.Populate(s.Device(1), bootfs.Params{
				RootUUID: s.UUIDs.Root,
				FsType:   cnst.RootFsType,
				Flags:    cnst.RootMountOpts,
				DTB:      s.Platform.DTBPath(),
			})
		})))
}

// CopyRootDagStep fills partition 2 from the live root.
func (s *State) CopyRootDagStep(g *herd.Graph, deps ...string) error {
	return g.Add(cnst.OpCopyRoot,
		herd.WithDeps(deps...),
		herd.WithCallback(s.step(cnst.OpCopyRoot, func(_ context.Context) error {
			return s.rootPopulator().Populate(s.Target, s.UUIDs)
		})))
}

// FormatSpareDagStep creates the empty filesystems on partitions 3 and 4.
func (s *State) FormatSpareDagStep(g *herd.Graph, deps ...string) error {
	return g.Add(cnst.OpFormatSpare,
		herd.WithDeps(deps...),
		herd.WithCallback(s.step(cnst.OpFormatSpare, func(_ context.Context) error {
			return s.rootPopulator().FormatSpare(s.Target, s.UUIDs)
		})))
}

func (s *State) rootPopulator() *rootfs.Populator {
	return &rootfs.Populator{
		FS:       s.FS,
		Runner:   s.Runner,
		Mounter:  s.Mounter,
		Scratch:  s.scratch,
		Source:   s.RootSource,
		Dirs:     cnst.DefaultRootDirs(),
		Skeleton: cnst.DefaultSkeletonDirs(),
	}
}
