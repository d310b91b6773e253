package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/btcbasis/internal/app"
	"github.com/alanyoungcy/btcbasis/internal/config"
	"github.com/alanyoungcy/btcbasis/internal/domain"
)

// openApp loads and validates the configuration and returns an App logging
// JSON to w at the configured level.
func openApp(w io.Writer) (*app.App, *slog.Logger, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", *configPath, err)
	}

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger.Debug("config loaded", slog.Any("config", config.RedactedConfig(cfg)))
	return app.New(cfg, logger), logger, nil
}

// fail reports err on stderr and maps it to an exit status.
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if errors.Is(err, domain.ErrInvalidInput) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

func parseDisposal(tenant, id string) (uuid.UUID, error) {
	if tenant == "" {
		return uuid.Nil, fmt.Errorf("-tenant is required: %w", domain.ErrInvalidInput)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-disposal %q: %w", id, domain.ErrInvalidInput)
	}
	return parsed, nil
}

// usd formats a dollar amount for display, e.g. "$12,333.33".
func usd(d decimal.Decimal) string {
	return money.New(int64(domain.CentsFromUSD(d)), money.USD).Display()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
