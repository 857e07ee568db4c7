package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/numeric"
)

// streamMaxLen is the approximate maximum length for the run event
// stream, enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus publishes run milestones: fills go to an ephemeral Pub/Sub
// channel for live dashboards, and both fills and completions are
// appended to a durable stream keyed by run id.
type EventBus struct {
	rdb   *redis.Client
	runID string
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client, runID string) *EventBus {
	return &EventBus{rdb: c.Underlying(), runID: runID}
}

type fillEvent struct {
	RunID         string    `json:"run_id"`
	TradeID       string    `json:"trade_id"`
	Price         string    `json:"price"`
	Size          string    `json:"size"`
	Side          string    `json:"side"`
	FeeQuantity   string    `json:"fee_quantity"`
	FeeAsset      string    `json:"fee_asset"`
	ClientOrderID string    `json:"client_order_id"`
	Time          time.Time `json:"time"`
}

type completeEvent struct {
	RunID   string            `json:"run_id"`
	Summary domain.SummaryRow `json:"summary"`
	Time    time.Time         `json:"time"`
}

// PublishFill implements the controller's Publisher interface.
func (b *EventBus) PublishFill(ctx context.Context, trade domain.PrivateTrade) error {
	payload, err := json.Marshal(fillEvent{
		RunID:         b.runID,
		TradeID:       trade.TradeID,
		Price:         numeric.Normalize(trade.Price),
		Size:          numeric.Normalize(trade.Size),
		Side:          string(trade.Side),
		FeeQuantity:   numeric.Normalize(trade.FeeQuantity),
		FeeAsset:      trade.FeeAsset,
		ClientOrderID: trade.ClientOrderID,
		Time:          trade.Time,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal fill: %w", err)
	}
	if err := b.rdb.Publish(ctx, "execbot:fills", payload).Err(); err != nil {
		return fmt.Errorf("redis: publish fill: %w", err)
	}
	return b.streamAppend(ctx, "fill", payload)
}

// PublishComplete implements the controller's Publisher interface.
func (b *EventBus) PublishComplete(ctx context.Context, summary domain.SummaryRow) error {
	payload, err := json.Marshal(completeEvent{
		RunID:   b.runID,
		Summary: summary,
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal completion: %w", err)
	}
	if err := b.rdb.Publish(ctx, "execbot:runs", payload).Err(); err != nil {
		return fmt.Errorf("redis: publish completion: %w", err)
	}
	return b.streamAppend(ctx, "complete", payload)
}

func (b *EventBus) streamAppend(ctx context.Context, kind string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: "execbot:events:" + b.runID,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":    kind,
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", kind, err)
	}
	return nil
}
