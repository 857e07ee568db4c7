package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/execbot/internal/config"
	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/exec"
	"github.com/alanyoungcy/execbot/internal/gateway/binance"
	"github.com/alanyoungcy/execbot/internal/ledger"
	"github.com/alanyoungcy/execbot/internal/replay"
	"github.com/alanyoungcy/execbot/internal/sched"
)

// serialSink serializes deliveries into the controller, which is
// single-owner state. The market feed, user feed and gateway each run on
// their own goroutine; the mutex gives the controller one caller at a
// time. The inner sink is set after construction because the live
// gateway and the controller reference each other.
type serialSink struct {
	mu   sync.Mutex
	sink domain.EventSink
}

func (s *serialSink) ProcessEvents(ctx context.Context, batch []domain.MarketEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.ProcessEvents(ctx, batch)
}

func (s *serialSink) ProcessAck(ctx context.Context, ack domain.RequestAck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.ProcessAck(ctx, ack)
}

// cachingSink tees the latest quote of each batch into the Redis book
// cache before forwarding. Cache failures are logged and never block the
// engine.
type cachingSink struct {
	inner  domain.EventSink
	deps   *Dependencies
	symbol string
	logger *slog.Logger
}

func (s *cachingSink) ProcessEvents(ctx context.Context, batch []domain.MarketEvent) {
	for i := len(batch) - 1; i >= 0; i-- {
		if depth, ok := batch[i].(domain.DepthUpdate); ok {
			if err := s.deps.BookCache.SetTopOfBook(ctx, s.symbol, depth); err != nil {
				s.logger.Warn("book cache update failed", slog.String("error", err.Error()))
			}
			break
		}
	}
	s.inner.ProcessEvents(ctx, batch)
}

func (s *cachingSink) ProcessAck(ctx context.Context, ack domain.RequestAck) {
	s.inner.ProcessAck(ctx, ack)
}

// LiveMode trades against the venue: market data and private fills
// arrive over WebSocket, orders go out over signed REST.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	sink := &serialSink{}
	rest := binance.NewRestClient(a.cfg.Gateway.RestURL, a.cfg.Gateway.ApiKey, a.cfg.Gateway.ApiSecret)
	gw := binance.NewGateway(rest, a.cfg.Instrument.Symbol, sink, a.logger)

	ctrl, err := a.buildController(deps, gw)
	if err != nil {
		return err
	}
	sink.sink = a.wrapSink(ctrl, deps)

	marketFeed := binance.NewMarketFeed(a.cfg.Gateway.WsURL, a.cfg.Instrument.Symbol, sink, a.logger)
	userFeed := binance.NewUserFeed(a.cfg.Gateway.WsURL, rest, sink, a.logger)

	a.notifyStarted(ctx, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return marketFeed.Run(gctx) })
	g.Go(func() error { return userFeed.Run(gctx) })

	select {
	case <-gctx.Done():
	case <-ctrl.Done():
	}
	marketFeed.Close()
	userFeed.Close()
	if err := g.Wait(); err != nil && ctx.Err() == nil && !ctrl.Complete() {
		a.notifyError(ctx, deps, err)
		return fmt.Errorf("app: live feeds: %w", err)
	}
	if ctx.Err() != nil && !ctrl.Complete() {
		a.logger.Info("live run interrupted before completion")
		return ctx.Err()
	}
	return a.finish(ctx, ctrl, deps)
}

// PaperMode runs against live public market data with simulated fills;
// no credentials and no private stream.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	ctrl, err := a.buildController(deps, nil)
	if err != nil {
		return err
	}
	sink := &serialSink{sink: a.wrapSink(ctrl, deps)}

	marketFeed := binance.NewMarketFeed(a.cfg.Gateway.WsURL, a.cfg.Instrument.Symbol, sink, a.logger)

	a.notifyStarted(ctx, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return marketFeed.Run(gctx) })

	select {
	case <-gctx.Done():
	case <-ctrl.Done():
	}
	marketFeed.Close()
	if err := g.Wait(); err != nil && ctx.Err() == nil && !ctrl.Complete() {
		a.notifyError(ctx, deps, err)
		return fmt.Errorf("app: market feed: %w", err)
	}
	if ctx.Err() != nil && !ctrl.Complete() {
		a.logger.Info("paper run interrupted before completion")
		return ctx.Err()
	}
	return a.finish(ctx, ctrl, deps)
}

// BacktestMode replays historical market data through the controller.
// The replay is synchronous; when it returns, every event has been fully
// processed.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode")

	ctrl, err := a.buildController(deps, nil)
	if err != nil {
		return err
	}

	source, err := a.replaySource(deps)
	if err != nil {
		return err
	}
	startDate, _ := time.Parse("2006-01-02", a.cfg.Backtest.StartDate)
	endDate, _ := time.Parse("2006-01-02", a.cfg.Backtest.EndDate)
	replayer := replay.NewReplayer(replay.Options{
		Exchange:     a.cfg.Instrument.Exchange,
		BaseAsset:    a.cfg.Instrument.BaseAsset,
		QuoteAsset:   a.cfg.Instrument.QuoteAsset,
		FilePrefix:   a.cfg.Recorder.FilePrefix,
		FileSuffix:   a.cfg.Recorder.FileSuffix,
		StartDate:    startDate.UTC(),
		EndDate:      endDate.UTC(),
		StepInterval: time.Duration(a.cfg.Backtest.ClockStepSeconds) * time.Second,
	}, source, a.wrapSink(ctrl, deps), a.logger)

	a.notifyStarted(ctx, deps)

	if err := replayer.Run(ctx); err != nil {
		a.notifyError(ctx, deps, err)
		return fmt.Errorf("app: replay: %w", err)
	}
	if !ctrl.Complete() {
		a.logger.Warn("historical data exhausted before the plan completed")
	}
	return a.finish(ctx, ctrl, deps)
}

// replaySource selects where the backtest reads its history from.
func (a *App) replaySource(deps *Dependencies) (replay.Source, error) {
	switch a.cfg.Backtest.DataSource {
	case "local":
		return replay.DirSource{Dir: a.cfg.Backtest.DataDir}, nil
	case "s3":
		if deps.BlobReader == nil {
			return nil, fmt.Errorf("app: backtest data source is s3 but no reader is wired")
		}
		prefix := strings.Trim(a.cfg.Backtest.DataDir, "/")
		return replay.SourceFunc(func(ctx context.Context, name string) (io.ReadCloser, error) {
			key := name
			if prefix != "" {
				key = prefix + "/" + name
			}
			return deps.BlobReader.Get(ctx, key)
		}), nil
	default:
		return nil, fmt.Errorf("app: unknown backtest data source %q", a.cfg.Backtest.DataSource)
	}
}

// wrapSink attaches the book-cache tee when Redis is wired.
func (a *App) wrapSink(ctrl *exec.Controller, deps *Dependencies) domain.EventSink {
	if deps.BookCache == nil {
		return ctrl
	}
	return &cachingSink{
		inner:  ctrl,
		deps:   deps,
		symbol: a.cfg.Instrument.Symbol,
		logger: a.logger,
	}
}

// buildController assembles the controller and its collaborators from
// the validated configuration. gateway is nil in simulated modes.
func (a *App) buildController(deps *Dependencies, gateway domain.MarketGateway) (*exec.Controller, error) {
	cfg := a.cfg
	mode := domain.TradingMode(strings.ToUpper(cfg.Mode))
	side := domain.Side(strings.ToUpper(cfg.Execution.Side))

	start := time.Now().UTC()
	if mode == domain.ModeBacktest {
		start, _ = time.Parse("2006-01-02", cfg.Backtest.StartDate)
	}
	if cfg.Execution.StartTime != "" {
		start, _ = time.Parse(time.RFC3339, cfg.Execution.StartTime)
	}

	plan := sched.NewPlan(
		side,
		config.Decimal(cfg.Execution.TotalTargetQuantity),
		config.Decimal(cfg.Execution.TotalTargetQuantityInQuote),
		start.UTC(),
		time.Duration(cfg.Execution.TotalDurationSeconds)*time.Second,
		time.Duration(cfg.Execution.OrderRefreshIntervalSeconds)*time.Second,
		cfg.Execution.NumOrderRefreshIntervals,
	)

	sizer, err := sched.NewSizer(
		strings.ToUpper(cfg.Execution.Strategy),
		cfg.Execution.TwapOrderQuantityRandomizationMax,
		cfg.Execution.RandomSeed,
	)
	if err != nil {
		return nil, fmt.Errorf("app: strategy %q: %w", cfg.Execution.Strategy, err)
	}

	orders := ledger.NewOrderLedger()
	balances := ledger.NewBalanceLedger(cfg.Instrument.BaseAsset, cfg.Instrument.QuoteAsset, ledger.FeeSchedule{
		MakerFee:            config.Decimal(cfg.Fees.MakerFee),
		TakerFee:            config.Decimal(cfg.Fees.TakerFee),
		MakerBuyerFeeAsset:  cfg.Fees.MakerBuyerFeeAsset,
		MakerSellerFeeAsset: cfg.Fees.MakerSellerFeeAsset,
		TakerBuyerFeeAsset:  cfg.Fees.TakerBuyerFeeAsset,
		TakerSellerFeeAsset: cfg.Fees.TakerSellerFeeAsset,
	})
	if mode.Simulated() {
		balances.SetBalances(
			config.Decimal(cfg.Paper.BaseBalance),
			config.Decimal(cfg.Paper.QuoteBalance),
		)
	}

	opts := exec.Options{
		Mode:       mode,
		Exchange:   cfg.Instrument.Exchange,
		Instrument: cfg.Instrument.Symbol,
		BaseAsset:  cfg.Instrument.BaseAsset,
		QuoteAsset: cfg.Instrument.QuoteAsset,
		AccountID:  cfg.Execution.AccountID,

		PriceIncrement:    config.Decimal(cfg.Instrument.PriceIncrement),
		QuantityIncrement: config.Decimal(cfg.Instrument.QuantityIncrement),

		RefreshInterval:              time.Duration(cfg.Execution.OrderRefreshIntervalSeconds) * time.Second,
		RefreshIntervalOffsetSeconds: cfg.Execution.OrderRefreshIntervalOffsetSeconds,
		BalanceRefreshWait:           time.Duration(cfg.Execution.AccountBalanceRefreshWaitSeconds) * time.Second,

		PriceLimits: sched.PriceLimits{
			RelativeToMid: config.Decimal(cfg.Execution.OrderPriceLimitRelativeToMidPrice),
			Absolute:      config.Decimal(cfg.Execution.OrderPriceLimit),
		},
		PerOrderCapRatio: config.Decimal(cfg.Execution.OrderQuantityLimitRelativeToTarget),

		BaseBalanceProportion:  config.Decimal(cfg.Risk.BaseAvailableBalanceProportion),
		QuoteBalanceProportion: config.Decimal(cfg.Risk.QuoteAvailableBalanceProportion),

		ImmediatelyPlaceNewOrders: cfg.Execution.ImmediatelyPlaceNewOrders,
	}

	return exec.NewController(opts, plan, sizer, orders, balances, gateway, deps.Recorder, deps.Publisher, a.logger), nil
}

// finish records the final summary, uploads artifacts when configured,
// and sends the completion notification.
func (a *App) finish(ctx context.Context, ctrl *exec.Controller, deps *Dependencies) error {
	// Shutdown may already have cancelled ctx; the final writes get their
	// own deadline.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	summary := ctrl.Summary()
	if err := deps.Recorder.RecordSummary(finishCtx, summary); err != nil {
		a.logger.Error("record summary", slog.String("error", err.Error()))
	}

	if a.cfg.S3.UploadArtifacts && deps.BlobWriter != nil {
		if err := deps.BlobWriter.UploadDirectory(finishCtx, a.cfg.Recorder.Dir, "runs/"+deps.RunID); err != nil {
			a.logger.Error("upload artifacts", slog.String("error", err.Error()))
		}
	}

	if err := deps.Notifier.NotifyRunComplete(finishCtx, a.cfg.Instrument.Symbol, summary); err != nil {
		a.logger.Warn("completion notification", slog.String("error", err.Error()))
	}

	a.logger.InfoContext(ctx, "run finished",
		slog.String("base_balance", summary.BaseBalance),
		slog.String("quote_balance", summary.QuoteBalance),
		slog.String("volume_base", summary.VolumeBaseSum),
		slog.String("volume_quote", summary.VolumeQuoteSum),
	)
	return nil
}

func (a *App) notifyStarted(ctx context.Context, deps *Dependencies) {
	target := a.cfg.Execution.TotalTargetQuantity + " " + a.cfg.Instrument.BaseAsset
	if config.Decimal(a.cfg.Execution.TotalTargetQuantityInQuote).IsPositive() {
		target = a.cfg.Execution.TotalTargetQuantityInQuote + " " + a.cfg.Instrument.QuoteAsset
	}
	if err := deps.Notifier.NotifyRunStarted(ctx,
		a.cfg.Instrument.Exchange,
		a.cfg.Instrument.Symbol,
		strings.ToUpper(a.cfg.Mode),
		strings.ToUpper(a.cfg.Execution.Side),
		target,
	); err != nil {
		a.logger.Warn("start notification", slog.String("error", err.Error()))
	}
}

func (a *App) notifyError(ctx context.Context, deps *Dependencies, err error) {
	if nerr := deps.Notifier.NotifyError(ctx, a.cfg.Instrument.Symbol, err); nerr != nil {
		a.logger.Warn("error notification", slog.String("error", nerr.Error()))
	}
}
