package binance

import (
	"testing"

	"github.com/alanyoungcy/execbot/internal/domain"
)

func TestParseBookTicker(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@bookTicker","data":{"u":400900217,"s":"BTCUSDT","b":"64000.10","B":"1.5","a":"64000.20","A":"2.25"}}`)

	event, err := parseStreamMessage(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	depth, ok := event.(domain.DepthUpdate)
	if !ok {
		t.Fatalf("event = %T, want DepthUpdate", event)
	}
	if got := depth.BestBidPrice.String(); got != "64000.1" {
		t.Errorf("best bid = %s, want 64000.1", got)
	}
	if got := depth.BestAskSize.String(); got != "2.25" {
		t.Errorf("best ask size = %s, want 2.25", got)
	}
	if depth.Time.IsZero() {
		t.Error("depth time not stamped")
	}
}

func TestParseAggTrade(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1700000000100,"s":"BTCUSDT","a":12345,"p":"64000.15","q":"0.42","T":1700000000000,"m":true}}`)

	event, err := parseStreamMessage(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	print, ok := event.(domain.TradePrint)
	if !ok {
		t.Fatalf("event = %T, want TradePrint", event)
	}
	if got := print.Price.String(); got != "64000.15" {
		t.Errorf("price = %s, want 64000.15", got)
	}
	if got := print.Size.String(); got != "0.42" {
		t.Errorf("size = %s, want 0.42", got)
	}
	if !print.IsBuyerMaker {
		t.Error("IsBuyerMaker = false, want true")
	}
	if got := print.Time.UnixMilli(); got != 1700000000000 {
		t.Errorf("time = %d, want 1700000000000", got)
	}
}

func TestParseStreamMessageIgnoresUnknownStream(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@kline_1m","data":{}}`)

	event, err := parseStreamMessage(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event != nil {
		t.Fatalf("event = %v, want nil", event)
	}
}

func TestParseUserMessageTrade(t *testing.T) {
	payload := []byte(`{"e":"executionReport","E":1700000000100,"s":"BTCUSDT","c":"abc-123","S":"BUY","o":"LIMIT","x":"TRADE","X":"PARTIALLY_FILLED","i":987,"p":"64000.10","q":"2","l":"0.5","z":"0.5","L":"64000.10","n":"0.0005","N":"BTC","T":1700000000000,"t":42,"m":true}`)

	batch, err := parseUserMessage(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch len = %d, want 2", len(batch))
	}
	trade, ok := batch[0].(domain.PrivateTrade)
	if !ok {
		t.Fatalf("batch[0] = %T, want PrivateTrade", batch[0])
	}
	if trade.TradeID != "42" || !trade.IsMaker || trade.FeeAsset != "BTC" {
		t.Errorf("unexpected trade: %+v", trade)
	}
	if got := trade.Size.String(); got != "0.5" {
		t.Errorf("trade size = %s, want 0.5", got)
	}
	update, ok := batch[1].(domain.OrderUpdate)
	if !ok {
		t.Fatalf("batch[1] = %T, want OrderUpdate", batch[1])
	}
	if update.Order.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", update.Order.Status)
	}
	if got := update.Order.RemainingQuantity.String(); got != "1.5" {
		t.Errorf("remaining = %s, want 1.5", got)
	}
}

func TestParseUserMessageNewOrder(t *testing.T) {
	payload := []byte(`{"e":"executionReport","E":1700000000100,"s":"BTCUSDT","c":"abc-123","S":"SELL","o":"LIMIT","x":"NEW","X":"NEW","i":988,"p":"64100","q":"2","l":"0","z":"0","L":"0","n":"0","T":1700000000000,"t":-1,"m":false}`)

	batch, err := parseUserMessage(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("batch len = %d, want 1", len(batch))
	}
	update, ok := batch[0].(domain.OrderUpdate)
	if !ok {
		t.Fatalf("batch[0] = %T, want OrderUpdate", batch[0])
	}
	if update.Order.OrderID != "988" || update.Order.Status != domain.OrderStatusNew {
		t.Errorf("unexpected order: %+v", update.Order)
	}
}

func TestParseUserMessageIgnoresOtherEvents(t *testing.T) {
	payload := []byte(`{"e":"outboundAccountPosition","E":1700000000100}`)

	batch, err := parseUserMessage(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if batch != nil {
		t.Fatalf("batch = %v, want nil", batch)
	}
}

func TestMapOrderStatus(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"NEW":              domain.OrderStatusNew,
		"PARTIALLY_FILLED": domain.OrderStatusPartiallyFilled,
		"FILLED":           domain.OrderStatusFilled,
		"CANCELED":         domain.OrderStatusCanceled,
		"EXPIRED":          domain.OrderStatusCanceled,
		"REJECTED":         domain.OrderStatusCanceled,
	}
	for venue, want := range cases {
		if got := mapOrderStatus(venue); got != want {
			t.Errorf("mapOrderStatus(%s) = %s, want %s", venue, got, want)
		}
	}
}
