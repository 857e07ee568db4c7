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

// bookTTL bounds staleness: a key that outlives its feed disappears
// instead of serving a frozen quote.
const bookTTL = 30 * time.Second

// BookCache stores the latest top of book per symbol so external
// consumers (dashboards, other bots) can read the quote the engine is
// pricing against without their own market-data connection.
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

type bookEntry struct {
	BestBidPrice string    `json:"best_bid_price"`
	BestBidSize  string    `json:"best_bid_size"`
	BestAskPrice string    `json:"best_ask_price"`
	BestAskSize  string    `json:"best_ask_size"`
	Time         time.Time `json:"time"`
}

// SetTopOfBook writes the latest quote for the symbol.
func (c *BookCache) SetTopOfBook(ctx context.Context, symbol string, depth domain.DepthUpdate) error {
	payload, err := json.Marshal(bookEntry{
		BestBidPrice: numeric.Normalize(depth.BestBidPrice),
		BestBidSize:  numeric.Normalize(depth.BestBidSize),
		BestAskPrice: numeric.Normalize(depth.BestAskPrice),
		BestAskSize:  numeric.Normalize(depth.BestAskSize),
		Time:         depth.Time,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal book: %w", err)
	}
	if err := c.rdb.Set(ctx, "execbot:book:"+symbol, payload, bookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", symbol, err)
	}
	return nil
}
