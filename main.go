package main

import (
	"os"

	"github.com/openwrt-rk/emmc-install/internal/cmd"
	internalUtils "github.com/openwrt-rk/emmc-install/internal/utils"
	"github.com/openwrt-rk/emmc-install/internal/version"
	"github.com/urfave/cli/v2"
)

// Install the running live system on the emmc.
func main() {
	internalUtils.SetLogger(false)

	app := cli.NewApp()
	app.Name = "emmc-install"
	app.Usage = "install the running system from the sd card to the emmc"
	app.Version = version.GetVersion()
	app.Flags = cmd.Flags
	app.Action = cmd.Install
	app.Commands = cmd.Commands

	err := app.Run(os.Args)
	if err != nil {
		internalUtils.Log.Error().Err(err).Msg("Install failed")
		os.Exit(1)
	}
}
