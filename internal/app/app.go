// Package app owns the application lifecycle: it wires the
// infrastructure (recorders, stores, caches, blob storage,
// notifications), builds the execution controller for the configured
// mode, and runs the feeds or the replayer until the run completes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/execbot/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, starts the configured mode, and blocks until
// the run completes or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting execution run",
		slog.String("mode", a.cfg.Mode),
		slog.String("exchange", a.cfg.Instrument.Exchange),
		slog.String("symbol", a.cfg.Instrument.Symbol),
		slog.String("side", a.cfg.Execution.Side),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToUpper(a.cfg.Mode) {
	case "LIVE":
		return a.LiveMode(ctx, deps)
	case "PAPER":
		return a.PaperMode(ctx, deps)
	case "BACKTEST":
		return a.BacktestMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
