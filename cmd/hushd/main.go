package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/hushd/hushd/common"
	"github.com/hushd/hushd/internal/daemon"
)

// version is stamped by the build.
var version = "dev"

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".hushd"
	}
	return filepath.Join(dir, "hushd")
}

func run(ctx *cli.Context) error {
	dataDir := ctx.String("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("error: cannot create data directory: %w", err)
	}

	l := log.Default()
	if ctx.Bool("debug") {
		l.SetFlags(l.Flags() | log.Lmicroseconds | log.Lshortfile)
	}
	r, err := daemon.New(daemon.Config{
		DataDir:     dataDir,
		RPCAddr:     ctx.String("rpc-addr"),
		SocketAddr:  ctx.String("socket-addr"),
		CalendarURL: ctx.String("calendar-url"),
		Version:     version,
	}, afero.NewOsFs(), l)
	if err != nil {
		return err
	}
	defer r.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.Run(runCtx)
}

func main() {
	app := cli.App{
		Name:      "hushd",
		Usage:     "ringer profile automation daemon",
		Version:   version,
		UsageText: "hushd [options...]",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:   "data-dir, d",
				Usage:  "directory for the ledger, usage log, and profiles",
				EnvVar: common.DataDirEnv,
				Value:  defaultDataDir(),
			},
			cli.StringFlag{
				Name:   "rpc-addr",
				Usage:  "listen address of the JSON-RPC HTTP bridge and websocket",
				EnvVar: common.RPCAddrEnv,
				Value:  common.DefaultRPCAddr,
			},
			cli.StringFlag{
				Name:   "socket-addr",
				Usage:  "listen address of the raw JSON-RPC control socket",
				EnvVar: common.SocketAddrEnv,
				Value:  common.DefaultSocketAddr,
			},
			cli.StringFlag{
				Name:   "calendar-url",
				Usage:  "ICS feed polled for calendar profiles",
				EnvVar: common.CalendarURLEnv,
			},
			cli.BoolFlag{
				Name:   "debug",
				Usage:  "verbose logging with source locations",
				EnvVar: common.DebugEnv,
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Printf("hushd: %s\n", err.Error())
		os.Exit(1)
	}
}
