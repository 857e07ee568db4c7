// Package recorder persists execution rows. The CSV recorder writes
// day-rolling files in the venue-archive naming scheme; MultiRecorder
// fans rows out to several backends (CSV plus PostgreSQL, typically).
package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/execbot/internal/domain"
)

var (
	privateTradeHeader = []string{
		"TIME", "TRADE_ID", "LAST_EXECUTED_PRICE", "LAST_EXECUTED_SIZE", "SIDE",
		"IS_MAKER", "ORDER_ID", "CLIENT_ORDER_ID", "FEE_QUANTITY", "FEE_ASSET",
	}
	orderUpdateHeader = []string{
		"TIME", "ORDER_ID", "CLIENT_ORDER_ID", "SIDE", "LIMIT_PRICE", "QUANTITY",
		"REMAINING_QUANTITY", "CUMULATIVE_FILLED_QUANTITY",
		"CUMULATIVE_FILLED_PRICE_TIMES_QUANTITY", "STATUS",
	}
	accountBalanceHeader = []string{
		"TIME", "BASE_AVAILABLE_BALANCE", "QUOTE_AVAILABLE_BALANCE",
		"BEST_BID_PRICE", "BEST_ASK_PRICE",
	}
	summaryHeader = []string{
		"BASE_AVAILABLE_BALANCE", "QUOTE_AVAILABLE_BALANCE", "BEST_BID_PRICE",
		"BEST_ASK_PRICE", "TRADE_VOLUME_IN_BASE_SUM", "TRADE_VOLUME_IN_QUOTE_SUM",
		"TRADE_FEE_IN_BASE_SUM", "TRADE_FEE_IN_QUOTE_SUM",
	}
)

// CSVOptions names the run for file naming and selects which files get
// written.
type CSVOptions struct {
	Dir        string
	FilePrefix string
	FileSuffix string
	Exchange   string
	BaseAsset  string
	QuoteAsset string

	// Summary file date range, normally the backtest start and end dates.
	StartDate time.Time
	EndDate   time.Time

	// OnlySaveFinalSummary suppresses the per-event files.
	OnlySaveFinalSummary bool
}

// CSVRecorder writes one file per row kind per UTC day, creating each
// file with its header on first use and appending thereafter. Not safe
// for concurrent use; the controller is its only caller.
type CSVRecorder struct {
	opts CSVOptions

	trades   *rollingFile
	updates  *rollingFile
	balances *rollingFile
}

// NewCSV creates the recorder and its output directory.
func NewCSV(opts CSVOptions) (*CSVRecorder, error) {
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("recorder: create dir: %w", err)
		}
	}
	r := &CSVRecorder{opts: opts}
	r.trades = &rollingFile{recorder: r, kind: "private-trade", header: privateTradeHeader}
	r.updates = &rollingFile{recorder: r, kind: "order-update", header: orderUpdateHeader}
	r.balances = &rollingFile{recorder: r, kind: "account-balance", header: accountBalanceHeader}
	return r, nil
}

// RecordPrivateTrade implements domain.Recorder.
func (r *CSVRecorder) RecordPrivateTrade(_ context.Context, row domain.PrivateTradeRow) error {
	if r.opts.OnlySaveFinalSummary {
		return nil
	}
	return r.trades.write(row.Time, []string{
		isoTime(row.Time), row.TradeID, row.Price, row.Size, row.Side,
		strconv.FormatBool(row.IsMaker), row.OrderID, row.ClientOrderID,
		row.FeeQuantity, row.FeeAsset,
	})
}

// RecordOrderUpdate implements domain.Recorder.
func (r *CSVRecorder) RecordOrderUpdate(_ context.Context, row domain.OrderUpdateRow) error {
	if r.opts.OnlySaveFinalSummary {
		return nil
	}
	return r.updates.write(row.Time, []string{
		isoTime(row.Time), row.OrderID, row.ClientOrderID, row.Side,
		row.LimitPrice, row.Quantity, row.RemainingQuantity,
		row.CumulativeFilledQuantity, row.CumulativeFilledNotional, row.Status,
	})
}

// RecordBalance implements domain.Recorder.
func (r *CSVRecorder) RecordBalance(_ context.Context, row domain.BalanceRow) error {
	if r.opts.OnlySaveFinalSummary {
		return nil
	}
	return r.balances.write(row.Time, []string{
		isoTime(row.Time), row.BaseBalance, row.QuoteBalance,
		row.BestBidPrice, row.BestAskPrice,
	})
}

// RecordSummary implements domain.Recorder. The summary file spans the
// whole run, so it never rolls; repeated runs over the same range append
// rows under a single header.
func (r *CSVRecorder) RecordSummary(_ context.Context, row domain.SummaryRow) error {
	name := r.fileName(r.opts.StartDate.UTC().Format("2006-01-02")+"__"+r.opts.EndDate.UTC().Format("2006-01-02"), "summary")
	return appendRow(name, summaryHeader, []string{
		row.BaseBalance, row.QuoteBalance, row.BestBidPrice, row.BestAskPrice,
		row.VolumeBaseSum, row.VolumeQuoteSum, row.FeeBaseSum, row.FeeQuoteSum,
	})
}

// Close is a no-op; every write opens, flushes and closes its file.
func (r *CSVRecorder) Close() error { return nil }

// fileName builds
// <prefix>__<exchange>__<base>-<quote>__<datePart>__<kind>[__<suffix>].csv
// inside the configured directory.
func (r *CSVRecorder) fileName(datePart, kind string) string {
	var sb strings.Builder
	if r.opts.FilePrefix != "" {
		sb.WriteString(r.opts.FilePrefix)
		sb.WriteString("__")
	}
	sb.WriteString(r.opts.Exchange)
	sb.WriteString("__")
	sb.WriteString(strings.ToLower(r.opts.BaseAsset))
	sb.WriteString("-")
	sb.WriteString(strings.ToLower(r.opts.QuoteAsset))
	sb.WriteString("__")
	sb.WriteString(datePart)
	sb.WriteString("__")
	sb.WriteString(kind)
	if r.opts.FileSuffix != "" {
		sb.WriteString("__")
		sb.WriteString(r.opts.FileSuffix)
	}
	sb.WriteString(".csv")
	return filepath.Join(r.opts.Dir, sb.String())
}

// rollingFile routes rows of one kind into the file for the row's UTC
// day, so a run crossing midnight splits its output per day.
type rollingFile struct {
	recorder *CSVRecorder
	kind     string
	header   []string
}

func (f *rollingFile) write(ts time.Time, row []string) error {
	day := ts.UTC().Format("2006-01-02")
	return appendRow(f.recorder.fileName(day, f.kind), f.header, row)
}

// appendRow appends one CSV row, writing the header first when the file
// does not exist yet.
func appendRow(name string, header, row []string) error {
	_, statErr := os.Stat(name)
	writeHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("recorder: open %s: %w", name, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("recorder: write header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("recorder: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("recorder: flush %s: %w", name, err)
	}
	return nil
}

func isoTime(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
