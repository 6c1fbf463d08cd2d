package state

import (
	"context"
	"fmt"
	"os"

	cnst "github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/device"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/openwrt-rk/emmc-install/pkg/schema"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

// CheckDependenciesDagStep adds the step making sure every tool we shell out to is there.
func (s *State) CheckDependenciesDagStep(g *herd.Graph) error {
	s.defaults()
	return g.Add(cnst.OpCheckDeps,
		herd.WithCallback(s.step(cnst.OpCheckDeps, func(_ context.Context) error {
			return internalUtils.CheckTools(s.Runner, cnst.RequiredTools())
		})))
}

// DiscoverDagStep adds the read only part of the init: platform, devices and uuids.
func (s *State) DiscoverDagStep(g *herd.Graph, deps ...string) error {
	s.defaults()
	return g.Add(cnst.OpInit,
		herd.WithDeps(deps...),
		herd.WithCallback(s.step(cnst.OpInit, func(_ context.Context) error {
			return s.discover()
		})))
}

// InitDagStep adds the full init, discover plus the scratch dir.
func (s *State) InitDagStep(g *herd.Graph, deps ...string) error {
	s.defaults()
	return g.Add(cnst.OpInit,
		herd.WithDeps(deps...),
		herd.WithCallback(s.step(cnst.OpInit, func(_ context.Context) error {
			if err := s.discover(); err != nil {
				return err
			}
			return s.prepareScratch()
		})))
}

func (s *State) discover() error {
	p, err := schema.LoadPlatform(s.FS, s.PlatformFile)
	if err != nil {
		return err
	}
	for _, img := range p.Images() {
		if _, err := s.FS.Stat(img); err != nil {
			return fmt.Errorf("%w: bootloader image: %w", cnst.ErrInvalidPlatform, err)
		}
	}
	s.Platform = p
	internalUtils.Log.Info().Str("platform", p.Platform).Str("family", p.Family).Str("fdt", p.FDTFile).Msg("Platform")

	s.RootDisk, err = s.Finder.RootDisk()
	if err != nil {
		return err
	}
	if s.Finder.RunningFromEMMC(s.RootDisk) {
		return fmt.Errorf("%w: %s has boot0, boot from the sd card to install", cnst.ErrRunningFromEMMC, s.RootDisk)
	}

	s.Target, err = s.Finder.EMMC(s.RootDisk)
	if err != nil {
		return err
	}
	internalUtils.Log.Info().Str("root", s.RootDisk).Str("target", s.Target).Msg("Devices")

	s.UUIDs, err = device.NewUUIDs(s.UUIDSources...)
	return err
}

func (s *State) prepareScratch() error {
	if s.ScratchDir == "" {
		dir, err := os.MkdirTemp("", cnst.ScratchPrefix)
		if err != nil {
			return err
		}
		s.ScratchDir = dir
	}
	if err := vfs.MkdirAll(s.FS, s.ScratchDir, 0o755); err != nil {
		return err
	}
	s.scratch = op.NewScratch(s.FS, s.ScratchDir, s.Mounter)
	internalUtils.Log.Debug().Str("where", s.ScratchDir).Msg("Scratch dir ready")
	return nil
}
