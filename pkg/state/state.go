package state

import (
	"context"
	"fmt"
	"time"

	cnst "github.com/openwrt-rk/emmc-install/internal/constants"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/pkg/device"
	"github.com/openwrt-rk/emmc-install/pkg/op"
	"github.com/openwrt-rk/emmc-install/pkg/schema"
	"github.com/spectrocloud-labs/herd"
	"github.com/twpayne/go-vfs/v4"
)

type State struct {
	FS           vfs.FS
	Runner       internalUtils.Runner
	Mounter      op.Mounter
	Finder       *device.Finder
	UUIDSources  []device.UUIDSource
	Partitions   func(disk string) ([]string, error) // e.g. mmcblk0 -> mmcblk0p1...
	PlatformFile string                              // e.g. /etc/flippy-openwrt-release
	BootSource   string                              // e.g. /boot
	RootSource   string                              // e.g. /
	ScratchDir   string                              // empty means a new temp dir
	WaitAttempts uint
	WaitDelay    time.Duration

	// Filled by the init step
	Platform schema.Platform
	RootDisk string // e.g. mmcblk1, the sd card we run from
	Target   string // e.g. mmcblk0
	UUIDs    schema.UUIDs
	Layout   schema.Layout

	scratch *op.Scratch
	err     error
}

// NewState returns a State wired to the running system.
func NewState() *State {
	s := &State{}
	s.defaults()
	return s
}

func (s *State) defaults() {
	if s.FS == nil {
		s.FS = vfs.OSFS
	}
	if s.Runner == nil {
		s.Runner = internalUtils.Console{}
	}
	if s.Mounter == nil {
		s.Mounter = op.SystemMounter{}
	}
	if s.Finder == nil {
		s.Finder = device.NewFinder(s.FS)
	}
	if s.UUIDSources == nil {
		s.UUIDSources = device.DefaultUUIDSources(s.FS)
	}
	if s.Partitions == nil {
		s.Partitions = device.GhwPartitions
	}
	if s.PlatformFile == "" {
		s.PlatformFile = cnst.PlatformFile
	}
	if s.BootSource == "" {
		s.BootSource = "/boot"
	}
	if s.RootSource == "" {
		s.RootSource = "/"
	}
	if s.WaitAttempts == 0 {
		s.WaitAttempts = 20
		s.WaitDelay = 500 * time.Millisecond
	}
	if s.Layout.Partitions == nil {
		s.Layout = schema.DefaultLayout()
	}
}

// Device returns the node of partition n on the target.
func (s *State) Device(n int) string {
	return internalUtils.PartitionDevice(s.Target, n)
}

// Err returns the error that stopped the pipeline, if any.
func (s *State) Err() error {
	return s.err
}

// step wraps a callback so the pipeline stops at the first failure:
// once a step failed every later one returns without touching anything.
func (s *State) step(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if s.err != nil {
			return fmt.Errorf("%s: %w", name, cnst.ErrPreviousStep)
		}
		if err := ctx.Err(); err != nil {
			s.err = err
			return err
		}
		l := internalUtils.Log.With().Str("step", name).Logger()
		l.Info().Msg("Starting")
		if err := fn(ctx); err != nil {
			s.err = fmt.Errorf("%s: %w", name, err)
			return s.err
		}
		l.Info().Msg("Done")
		return nil
	}
}

// WriteDAG writes the dag.
func (s *State) WriteDAG(g *herd.Graph) (out string) {
	for i, layer := range g.Analyze() {
		out += fmt.Sprintf("%d.\n", i+1)
		for _, op := range layer {
			if op.Error != nil {
				out += fmt.Sprintf(" <%s> (error: %s) (run: %t)\n", op.Name, op.Error.Error(), op.Executed)
			} else {
				out += fmt.Sprintf(" <%s> (run: %t)\n", op.Name, op.Executed)
			}
		}
	}
	return
}

// LogIfErrorAndReturn will log if there is an error with the given context as message
// Context can be empty
// Will also return the error.
func (s *State) LogIfErrorAndReturn(e error, msgContext string) error {
	if e != nil {
		internalUtils.Log.Err(e).Msg(msgContext)
	}
	return e
}

// PlanPartition is a partition as it will be created.
type PlanPartition struct {
	schema.Partition `yaml:",inline"`
	Device           string `yaml:"device"`
}

// Plan is what the install would do, as shown by the plan command.
type Plan struct {
	RootDisk   string          `yaml:"root_disk"`
	Target     string          `yaml:"target"`
	Platform   schema.Platform `yaml:"platform"`
	UUIDs      schema.UUIDs    `yaml:"uuids"`
	Partitions []PlanPartition `yaml:"partitions"`
}

func (s *State) Plan() Plan {
	p := Plan{RootDisk: s.RootDisk, Target: s.Target, Platform: s.Platform, UUIDs: s.UUIDs}
	for _, part := range s.Layout.Partitions {
		p.Partitions = append(p.Partitions, PlanPartition{Partition: part, Device: s.Device(part.Number)})
	}
	return p
}
