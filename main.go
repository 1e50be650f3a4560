package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/vinceanalytics/collector/internal/cmd"
)

func main() {
	if err := cmd.Cli().Run(context.Background(), os.Args); err != nil {
		slog.Error("exited with error", "err", err)
		os.Exit(1)
	}
}
