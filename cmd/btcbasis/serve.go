package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/subcommands"
)

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API and websocket event stream" }
func (*serveCmd) Usage() string {
	return `btcbasis [-config <path>] serve

  Serves the cost-basis and exchange-rate API until interrupted.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, logger, err := openApp(os.Stdout)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	logger.InfoContext(ctx, "btcbasis starting", slog.String("config", *configPath))
	if err := a.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	logger.Info("btcbasis stopped")
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return `btcbasis [-config <path>] migrate

  Applies the embedded PostgreSQL migrations that have not run yet.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, _, err := openApp(os.Stderr)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	applied, err := a.Migrate(ctx)
	if err != nil {
		return fail(err)
	}
	if len(applied) == 0 {
		fmt.Println("database is up to date")
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
	return subcommands.ExitSuccess
}
