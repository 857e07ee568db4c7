package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/execbot/internal/domain"
)

const (
	readLimit    = 1 << 20
	pongWait     = 90 * time.Second
	reconnectGap = 2 * time.Second
)

// MarketFeed connects to the combined market-data stream for one symbol,
// subscribing to the top-of-book ticker and the aggregated trade tape,
// and delivers each message as a one-event batch to the sink. It
// reconnects on disconnect.
type MarketFeed struct {
	wsURL     string
	symbol    string
	sink      domain.EventSink
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewMarketFeed creates a feed for the given symbol. wsURL is the stream
// endpoint base, e.g. wss://stream.binance.com:9443.
func NewMarketFeed(wsURL, symbol string, sink domain.EventSink, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		wsURL:  strings.TrimRight(wsURL, "/"),
		symbol: strings.ToLower(symbol),
		sink:   sink,
		logger: logger.With(slog.String("component", "binance_market_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called.
// Reconnects with backoff on disconnect.
func (f *MarketFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}
		f.logger.Warn("market stream disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectGap):
		}
	}
}

func (f *MarketFeed) runConnection(ctx context.Context) error {
	streams := f.symbol + "@bookTicker/" + f.symbol + "@aggTrade"
	url := f.wsURL + "/stream?streams=" + streams

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("binance: dial %s: %w", url, err)
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	f.logger.Info("market stream connected", slog.String("streams", streams))

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("binance: read: %w", err)
		}
		event, err := parseStreamMessage(payload)
		if err != nil {
			f.logger.Warn("dropping unparseable message", slog.String("error", err.Error()))
			continue
		}
		if event == nil {
			continue
		}
		f.sink.ProcessEvents(ctx, []domain.MarketEvent{event})
	}
}

// Close stops the feed.
func (f *MarketFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// streamEnvelope is the combined-stream wrapper.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTickerMessage struct {
	BidPrice string `json:"b"`
	BidSize  string `json:"B"`
	AskPrice string `json:"a"`
	AskSize  string `json:"A"`
}

type aggTradeMessage struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func parseStreamMessage(payload []byte) (domain.MarketEvent, error) {
	var env streamEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	switch {
	case strings.HasSuffix(env.Stream, "@bookTicker"):
		var msg bookTickerMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("bookTicker: %w", err)
		}
		bidPrice, err := decimal.NewFromString(msg.BidPrice)
		if err != nil {
			return nil, fmt.Errorf("bookTicker bid price %q: %w", msg.BidPrice, err)
		}
		bidSize, _ := decimal.NewFromString(msg.BidSize)
		askPrice, err := decimal.NewFromString(msg.AskPrice)
		if err != nil {
			return nil, fmt.Errorf("bookTicker ask price %q: %w", msg.AskPrice, err)
		}
		askSize, _ := decimal.NewFromString(msg.AskSize)
		// bookTicker carries no event time; stamp on receipt.
		return domain.DepthUpdate{
			BestBidPrice: bidPrice,
			BestBidSize:  bidSize,
			BestAskPrice: askPrice,
			BestAskSize:  askSize,
			Time:         time.Now().UTC(),
		}, nil
	case strings.HasSuffix(env.Stream, "@aggTrade"):
		var msg aggTradeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("aggTrade: %w", err)
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			return nil, fmt.Errorf("aggTrade price %q: %w", msg.Price, err)
		}
		size, err := decimal.NewFromString(msg.Quantity)
		if err != nil {
			return nil, fmt.Errorf("aggTrade quantity %q: %w", msg.Quantity, err)
		}
		return domain.TradePrint{
			Price:        price,
			Size:         size,
			IsBuyerMaker: msg.IsBuyerMaker,
			Time:         time.UnixMilli(msg.TradeTime).UTC(),
		}, nil
	default:
		return nil, nil
	}
}

// UserFeed streams the account's own order updates and fills over the
// user-data WebSocket. It owns the listen-key lifecycle: obtained on
// connect, kept alive on a timer, reacquired on reconnect.
type UserFeed struct {
	wsURL     string
	rest      *RestClient
	sink      domain.EventSink
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewUserFeed creates a user-data feed backed by the given REST client.
func NewUserFeed(wsURL string, rest *RestClient, sink domain.EventSink, logger *slog.Logger) *UserFeed {
	return &UserFeed{
		wsURL:  strings.TrimRight(wsURL, "/"),
		rest:   rest,
		sink:   sink,
		logger: logger.With(slog.String("component", "binance_user_feed")),
		done:   make(chan struct{}),
	}
}

// Run streams until ctx is cancelled or Close is called. Reconnects with
// backoff on disconnect, fetching a fresh listen key each time.
func (f *UserFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}
		f.logger.Warn("user stream disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectGap):
		}
	}
}

func (f *UserFeed) runConnection(ctx context.Context) error {
	listenKey, err := f.rest.StartUserDataStream(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL+"/ws/"+listenKey, nil)
	if err != nil {
		return fmt.Errorf("binance: dial user stream: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	f.logger.Info("user stream connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-f.done:
				conn.Close()
				return
			case <-ticker.C:
				if err := f.rest.KeepAliveUserDataStream(connCtx, listenKey); err != nil {
					f.logger.Warn("listen key keepalive failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
	go func() {
		select {
		case <-connCtx.Done():
		case <-f.done:
		}
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("binance: read user stream: %w", err)
		}
		batch, err := parseUserMessage(payload)
		if err != nil {
			f.logger.Warn("dropping unparseable user message", slog.String("error", err.Error()))
			continue
		}
		if len(batch) == 0 {
			continue
		}
		f.sink.ProcessEvents(ctx, batch)
	}
}

// Close stops the feed.
func (f *UserFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

type executionReport struct {
	EventType       string `json:"e"`
	ClientOrderID   string `json:"c"`
	Side            string `json:"S"`
	ExecutionType   string `json:"x"`
	OrderStatus     string `json:"X"`
	OrderID         int64  `json:"i"`
	Price           string `json:"p"`
	OrigQty         string `json:"q"`
	LastQty         string `json:"l"`
	CumQty          string `json:"z"`
	LastPrice       string `json:"L"`
	Commission      string `json:"n"`
	CommissionAsset string `json:"N"`
	TradeID         int64  `json:"t"`
	IsMaker         bool   `json:"m"`
	TransactTime    int64  `json:"T"`
}

// parseUserMessage converts an execution report into engine events. A
// trade execution yields the fill followed by the resulting order state;
// any other report yields the order state alone.
func parseUserMessage(payload []byte) ([]domain.MarketEvent, error) {
	var report executionReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("user message: %w", err)
	}
	if report.EventType != "executionReport" {
		return nil, nil
	}

	eventTime := time.UnixMilli(report.TransactTime).UTC()
	price, _ := decimal.NewFromString(report.Price)
	quantity, _ := decimal.NewFromString(report.OrigQty)
	filled, _ := decimal.NewFromString(report.CumQty)
	order := domain.Order{
		OrderID:                  strconv.FormatInt(report.OrderID, 10),
		ClientOrderID:            report.ClientOrderID,
		Side:                     domain.Side(report.Side),
		LimitPrice:               price,
		Quantity:                 quantity,
		CumulativeFilledQuantity: filled,
		RemainingQuantity:        quantity.Sub(filled),
		Status:                   mapOrderStatus(report.OrderStatus),
	}

	if report.ExecutionType != "TRADE" {
		return []domain.MarketEvent{domain.OrderUpdate{Order: order, Time: eventTime}}, nil
	}

	lastPrice, _ := decimal.NewFromString(report.LastPrice)
	lastQty, _ := decimal.NewFromString(report.LastQty)
	fee, _ := decimal.NewFromString(report.Commission)
	trade := domain.PrivateTrade{
		TradeID:       strconv.FormatInt(report.TradeID, 10),
		Price:         lastPrice,
		Size:          lastQty,
		Side:          order.Side,
		IsMaker:       report.IsMaker,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		FeeQuantity:   fee,
		FeeAsset:      report.CommissionAsset,
		Time:          eventTime,
	}
	return []domain.MarketEvent{trade, domain.OrderUpdate{Order: order, Time: eventTime}}, nil
}
