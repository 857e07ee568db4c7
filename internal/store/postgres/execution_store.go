package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// ExecutionStore implements domain.Recorder on PostgreSQL, tagging every
// row with the run it belongs to. Decimal values arrive as canonical
// strings and are stored in NUMERIC columns unchanged.
type ExecutionStore struct {
	pool  *pgxpool.Pool
	runID string
}

// NewExecutionStore creates a store writing under the given run id.
func NewExecutionStore(pool *pgxpool.Pool, runID string) *ExecutionStore {
	return &ExecutionStore{pool: pool, runID: runID}
}

// CreateRun registers the run row that the record tables reference.
func (s *ExecutionStore) CreateRun(ctx context.Context, exchange, symbol, mode, side string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, exchange, symbol, mode, side)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		s.runID, exchange, symbol, mode, side,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run: %w", err)
	}
	return nil
}

// RecordPrivateTrade implements domain.Recorder.
func (s *ExecutionStore) RecordPrivateTrade(ctx context.Context, row domain.PrivateTradeRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO private_trades (
			run_id, event_time, trade_id, price, size, side,
			is_maker, order_id, client_order_id, fee_quantity, fee_asset
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.runID, row.Time, row.TradeID, row.Price, row.Size, row.Side,
		row.IsMaker, row.OrderID, row.ClientOrderID, row.FeeQuantity, row.FeeAsset,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert private trade: %w", err)
	}
	return nil
}

// RecordOrderUpdate implements domain.Recorder.
func (s *ExecutionStore) RecordOrderUpdate(ctx context.Context, row domain.OrderUpdateRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_updates (
			run_id, event_time, order_id, client_order_id, side, limit_price,
			quantity, remaining_quantity, cumulative_filled_quantity,
			cumulative_filled_notional, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.runID, row.Time, row.OrderID, row.ClientOrderID, row.Side, row.LimitPrice,
		row.Quantity, row.RemainingQuantity, row.CumulativeFilledQuantity,
		row.CumulativeFilledNotional, row.Status,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order update: %w", err)
	}
	return nil
}

// RecordBalance implements domain.Recorder.
func (s *ExecutionStore) RecordBalance(ctx context.Context, row domain.BalanceRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO balance_snapshots (
			run_id, event_time, base_balance, quote_balance,
			best_bid_price, best_ask_price
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.runID, row.Time, row.BaseBalance, row.QuoteBalance,
		nullIfEmpty(row.BestBidPrice), nullIfEmpty(row.BestAskPrice),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert balance snapshot: %w", err)
	}
	return nil
}

// RecordSummary implements domain.Recorder. A rerun of the same run id
// overwrites its previous summary.
func (s *ExecutionStore) RecordSummary(ctx context.Context, row domain.SummaryRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_summaries (
			run_id, base_balance, quote_balance, best_bid_price, best_ask_price,
			volume_base_sum, volume_quote_sum, fee_base_sum, fee_quote_sum
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			base_balance = EXCLUDED.base_balance,
			quote_balance = EXCLUDED.quote_balance,
			best_bid_price = EXCLUDED.best_bid_price,
			best_ask_price = EXCLUDED.best_ask_price,
			volume_base_sum = EXCLUDED.volume_base_sum,
			volume_quote_sum = EXCLUDED.volume_quote_sum,
			fee_base_sum = EXCLUDED.fee_base_sum,
			fee_quote_sum = EXCLUDED.fee_quote_sum,
			completed_at = NOW()`,
		s.runID, row.BaseBalance, row.QuoteBalance,
		nullIfEmpty(row.BestBidPrice), nullIfEmpty(row.BestAskPrice),
		row.VolumeBaseSum, row.VolumeQuoteSum, row.FeeBaseSum, row.FeeQuoteSum,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert run summary: %w", err)
	}
	return nil
}

// Close implements domain.Recorder. The pool is owned by the client.
func (s *ExecutionStore) Close() error { return nil }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
