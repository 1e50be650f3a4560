package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/collector/internal/config"
	"github.com/vinceanalytics/collector/internal/load"
	"github.com/vinceanalytics/collector/internal/server"
	"github.com/vinceanalytics/collector/internal/version"
)

func Cli() *cli.Command {
	return &cli.Command{
		Name:        "vince",
		Usage:       "Privacy friendly web analytics event collector",
		Description: `Collects analytics events without cookies and stores them as columnar segments`,
		Version:     version.VERSION,
		Commands: []*cli.Command{
			serve(),
			replay(),
			load.CMD(),
			version.Cmd(),
		},
	}
}

func serve() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Starts the intake server",
		Flags:  config.Flags(),
		Action: server.Serve,
	}
}

func replay() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Inserts dead lettered batches back into storage",
		Flags: config.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			o, err := config.Load(c)
			if err != nil {
				return err
			}
			log, _ := config.Logger(o.LogLevel)
			slog.SetDefault(log)
			n, err := server.Replay(ctx, o)
			fmt.Fprintf(c.Root().Writer, "replayed %d events\n", n)
			return err
		},
	}
}
