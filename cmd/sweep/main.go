package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/verity-labs/verity-go/internal/sweep"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("sweep terminated", "error", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps failure classes onto process exit codes: 2 for invalid
// configuration, 1 for everything fatal at runtime.
func exitCode(err error) int {
	var cfgErr *sweep.ConfigurationError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
