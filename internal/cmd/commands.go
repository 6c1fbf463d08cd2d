package cmd

import (
	"context"
	"fmt"
	"os"

	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/internal/version"
	"github.com/openwrt-rk/emmc-install/pkg/dag"
	"github.com/openwrt-rk/emmc-install/pkg/state"
	"github.com/spectrocloud-labs/herd"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "platform descriptor",
		EnvVars: []string{"EMMC_INSTALL_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "debug",
		EnvVars: []string{"EMMC_INSTALL_DEBUG"},
	},
	&cli.BoolFlag{
		Name:    "dry-run",
		Usage:   "print the steps and exit",
		EnvVars: []string{"EMMC_INSTALL_DRY_RUN"},
	},
}

// Install partitions the emmc and copies the live system on it.
func Install(c *cli.Context) error {
	internalUtils.SetLogger(c.Bool("debug"))
	version.Log(internalUtils.Log)

	s := newState(c)
	g := herd.DAG()
	if err := dag.RegisterInstall(s, g); err != nil {
		return err
	}

	internalUtils.Log.Debug().Msg(s.WriteDAG(g))

	// Once we print the dag we can exit already
	if c.Bool("dry-run") {
		fmt.Print(s.WriteDAG(g))
		return nil
	}

	err := g.Run(context.Background())
	internalUtils.Log.Debug().Msg(s.WriteDAG(g))
	if s.Err() != nil {
		return s.Err()
	}
	if err != nil {
		return err
	}
	internalUtils.Log.Info().Str("target", s.Target).Str("root uuid", s.UUIDs.Root).Msg("Install done, power off and remove the sd card")
	return nil
}

var Commands = []*cli.Command{
	{
		Name:  "plan",
		Usage: "show the devices, layout and uuids an install would use",
		Description: `
Runs the read only checks of the install and prints the result as yaml. Nothing is written.
`,
		Action: func(c *cli.Context) error {
			internalUtils.SetLogger(c.Bool("debug"))

			s := newState(c)
			g := herd.DAG()
			if err := dag.RegisterPlan(s, g); err != nil {
				return err
			}
			err := g.Run(context.Background())
			if s.Err() != nil {
				return s.Err()
			}
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(s.Plan())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	},
	{
		Name:  "version",
		Usage: "version",
		Action: func(c *cli.Context) error {
			out, err := yaml.Marshal(version.Get())
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	},
}

func newState(c *cli.Context) *state.State {
	s := state.NewState()
	if cfg := c.String("config"); cfg != "" {
		s.PlatformFile = cfg
	}
	return s
}
