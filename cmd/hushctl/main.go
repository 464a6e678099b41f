package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/hushd/hushd/common"
)

// version is stamped by the build.
var version = "dev"

func main() {
	app := cli.App{
		Name:      "hushctl",
		HelpName:  "hushctl",
		Usage:     "control a running hushd daemon",
		Version:   version,
		UsageText: "hushctl <command> [arguments...]",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "socket-addr, s",
				Usage:  "address of the daemon's control socket",
				EnvVar: common.SocketAddrEnv,
			},
		},
		Commands: []cli.Command{
			{
				Name:    "add",
				Aliases: []string{"a"},
				Usage:   "add a profile and arm it",
				Action:  add,
				Flags:   addFlags,
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "list stored profiles",
				Action:  list,
			},
			{
				Name:      "enable",
				Usage:     "re-enable a disabled profile",
				ArgsUsage: "<profile-id>",
				Action:    enable,
			},
			{
				Name:      "disable",
				Usage:     "disable a profile and revert anything it engaged",
				ArgsUsage: "<profile-id>",
				Action:    disable,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "remove a profile",
				ArgsUsage: "<profile-id>",
				Action:    remove,
			},
			{
				Name:    "active",
				Usage:   "show triggers currently holding the ringer",
				Action:  active,
				Aliases: []string{"st"},
			},
			{
				Name:   "usage",
				Usage:  "show activation statistics",
				Action: usageStats,
				Flags:  usageFlags,
			},
			{
				Name:      "locate",
				Usage:     "feed a position fix to the geofence provider",
				ArgsUsage: "<latitude> <longitude>",
				Action:    locate,
			},
			{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "print client and daemon versions",
				Action:  getVersion,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Printf("hushctl: %s\n", err.Error())
		os.Exit(1)
	}
}
