// Package replay drives the execution engine from historical market
// data. Depth and trade CSV files are read day by day between the
// configured dates and fed to the sink in fixed clock steps, exactly as
// a live feed would deliver them.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// Source opens a historical data file by name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads historical data files from a local directory.
type DirSource struct {
	Dir string
}

func (s DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("replay: open %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("replay: open %s: %w", name, err)
	}
	return f, nil
}

// SourceFunc adapts a function to the Source interface. Used to plug in
// object-storage getters.
type SourceFunc func(ctx context.Context, name string) (io.ReadCloser, error)

func (f SourceFunc) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return f(ctx, name)
}

// Options configures a historical replay run.
type Options struct {
	Exchange   string
	BaseAsset  string
	QuoteAsset string
	FilePrefix string
	FileSuffix string

	// StartDate is inclusive, EndDate exclusive; both at UTC midnight.
	StartDate time.Time
	EndDate   time.Time

	// StepInterval is the simulated clock step. Events falling in the
	// same step are delivered as a single batch, trades first and the
	// step's last quote at the end. Defaults to one second.
	StepInterval time.Duration
}

// Replayer reads depth and trade history and replays it into the sink
// synchronously, so every batch is fully processed before the next one
// is read.
type Replayer struct {
	opts   Options
	source Source
	sink   domain.EventSink
	logger *slog.Logger
}

// NewReplayer creates a replayer over the given source.
func NewReplayer(opts Options, source Source, sink domain.EventSink, logger *slog.Logger) *Replayer {
	if opts.StepInterval <= 0 {
		opts.StepInterval = time.Second
	}
	return &Replayer{
		opts:   opts,
		source: source,
		sink:   sink,
		logger: logger.With(slog.String("component", "replayer")),
	}
}

// Run replays every configured day in order. A day missing both its
// depth and trade file is skipped with a warning; any other read error
// aborts the replay.
func (r *Replayer) Run(ctx context.Context) error {
	for day := r.opts.StartDate; day.Before(r.opts.EndDate); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.replayDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replayer) replayDay(ctx context.Context, day time.Time) error {
	date := day.Format("2006-01-02")

	depths, err := r.readDepthFile(ctx, date)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	prints, err := r.readTradeFile(ctx, date)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if len(depths) == 0 && len(prints) == 0 {
		r.logger.Warn("no historical data for day", slog.String("date", date))
		return nil
	}
	r.logger.Info("replaying day",
		slog.String("date", date),
		slog.Int("depth_updates", len(depths)),
		slog.Int("trades", len(prints)))

	for _, batch := range stepBatches(depths, prints, r.opts.StepInterval) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.sink.ProcessEvents(ctx, batch)
	}
	return nil
}

// stepBatches buckets events into fixed clock steps. Each batch carries
// the step's trade prints in time order followed by its latest quote, so
// downstream timing checks run once per step against the freshest book.
func stepBatches(depths []domain.DepthUpdate, prints []domain.TradePrint, step time.Duration) [][]domain.MarketEvent {
	buckets := make(map[int64][]domain.MarketEvent)
	lastDepth := make(map[int64]domain.DepthUpdate)

	for _, p := range prints {
		key := p.Time.UnixNano() / int64(step)
		buckets[key] = append(buckets[key], p)
	}
	for _, d := range depths {
		key := d.Time.UnixNano() / int64(step)
		if prev, ok := lastDepth[key]; !ok || !d.Time.Before(prev.Time) {
			lastDepth[key] = d
		}
		if _, ok := buckets[key]; !ok {
			buckets[key] = nil
		}
	}

	keys := make([]int64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	batches := make([][]domain.MarketEvent, 0, len(keys))
	for _, key := range keys {
		batch := buckets[key]
		if d, ok := lastDepth[key]; ok {
			batch = append(batch, d)
		}
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}
	return batches
}

func (r *Replayer) readDepthFile(ctx context.Context, date string) ([]domain.DepthUpdate, error) {
	records, err := r.readFile(ctx, r.fileName(date, "market-depth"))
	if err != nil {
		return nil, err
	}
	depths := make([]domain.DepthUpdate, 0, len(records))
	for i, rec := range records {
		if len(rec) < 5 {
			return nil, fmt.Errorf("replay: market-depth %s row %d: want 5 columns, got %d", date, i+2, len(rec))
		}
		ts, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("replay: market-depth %s row %d: %w", date, i+2, err)
		}
		bidPrice, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, fmt.Errorf("replay: market-depth %s row %d bid price: %w", date, i+2, err)
		}
		bidSize, _ := decimal.NewFromString(rec[2])
		askPrice, err := decimal.NewFromString(rec[3])
		if err != nil {
			return nil, fmt.Errorf("replay: market-depth %s row %d ask price: %w", date, i+2, err)
		}
		askSize, _ := decimal.NewFromString(rec[4])
		depths = append(depths, domain.DepthUpdate{
			BestBidPrice: bidPrice,
			BestBidSize:  bidSize,
			BestAskPrice: askPrice,
			BestAskSize:  askSize,
			Time:         ts,
		})
	}
	return depths, nil
}

func (r *Replayer) readTradeFile(ctx context.Context, date string) ([]domain.TradePrint, error) {
	records, err := r.readFile(ctx, r.fileName(date, "trade"))
	if err != nil {
		return nil, err
	}
	prints := make([]domain.TradePrint, 0, len(records))
	for i, rec := range records {
		if len(rec) < 4 {
			return nil, fmt.Errorf("replay: trade %s row %d: want 4 columns, got %d", date, i+2, len(rec))
		}
		ts, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("replay: trade %s row %d: %w", date, i+2, err)
		}
		price, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, fmt.Errorf("replay: trade %s row %d price: %w", date, i+2, err)
		}
		size, err := decimal.NewFromString(rec[2])
		if err != nil {
			return nil, fmt.Errorf("replay: trade %s row %d size: %w", date, i+2, err)
		}
		prints = append(prints, domain.TradePrint{
			Price:        price,
			Size:         size,
			IsBuyerMaker: strings.EqualFold(rec[3], "1") || strings.EqualFold(rec[3], "true"),
			Time:         ts,
		})
	}
	return prints, nil
}

// readFile opens and parses one CSV file, dropping the header row.
func (r *Replayer) readFile(ctx context.Context, name string) ([][]string, error) {
	rc, err := r.source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("replay: parse %s: %w", name, err)
	}
	if len(records) <= 1 {
		return nil, nil
	}
	return records[1:], nil
}

// fileName mirrors the recorder's naming scheme so recorded data can be
// replayed directly.
func (r *Replayer) fileName(date, kind string) string {
	var b strings.Builder
	if r.opts.FilePrefix != "" {
		b.WriteString(r.opts.FilePrefix)
		b.WriteString("__")
	}
	b.WriteString(r.opts.Exchange)
	b.WriteString("__")
	b.WriteString(strings.ToLower(r.opts.BaseAsset))
	b.WriteString("-")
	b.WriteString(strings.ToLower(r.opts.QuoteAsset))
	b.WriteString("__")
	b.WriteString(date)
	b.WriteString("__")
	b.WriteString(kind)
	if r.opts.FileSuffix != "" {
		b.WriteString("__")
		b.WriteString(r.opts.FileSuffix)
	}
	b.WriteString(".csv")
	return b.String()
}

func parseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return ts.UTC(), nil
}
