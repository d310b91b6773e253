// Command btcbasis computes FIFO cost basis for Bitcoin disposals and serves
// daily BTC/USD exchange rates. It loads configuration, sets up structured
// logging and signal handling, and dispatches to a subcommand.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "config.toml", "path to configuration file")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&serveCmd{}, "server")
	commander.Register(&migrateCmd{}, "server")

	commander.Register(&costBasisCmd{}, "ledger")
	commander.Register(&gainCmd{}, "ledger")
	commander.Register(&exportCmd{}, "ledger")

	commander.Register(&rateCmd{}, "rates")
	commander.Register(&ratesCmd{}, "rates")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
