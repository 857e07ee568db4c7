package binance

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/execbot/internal/domain"
)

// Gateway submits order requests to the venue over REST and feeds the
// acknowledgements back through the sink. Requests within a batch are
// executed in order; the batch as a whole runs on its own goroutine so
// acks never re-enter the caller's stack.
type Gateway struct {
	rest   *RestClient
	symbol string
	sink   domain.EventSink
	logger *slog.Logger
}

// NewGateway creates a Gateway for the given symbol.
func NewGateway(rest *RestClient, symbol string, sink domain.EventSink, logger *slog.Logger) *Gateway {
	return &Gateway{
		rest:   rest,
		symbol: symbol,
		sink:   sink,
		logger: logger.With(slog.String("component", "binance_gateway")),
	}
}

// SendRequests implements domain.MarketGateway.
func (g *Gateway) SendRequests(ctx context.Context, reqs []domain.OrderRequest) error {
	go g.process(ctx, reqs)
	return nil
}

func (g *Gateway) process(ctx context.Context, reqs []domain.OrderRequest) {
	for _, req := range reqs {
		ack := g.execute(ctx, req)
		if ctx.Err() != nil {
			return
		}
		g.sink.ProcessAck(ctx, ack)
	}
}

func (g *Gateway) execute(ctx context.Context, req domain.OrderRequest) domain.RequestAck {
	switch r := req.(type) {
	case domain.CreateOrder:
		order, err := g.rest.CreateOrder(ctx, g.symbol, r)
		if err != nil {
			return g.errorAck(r.CorrelationID, "create order", err)
		}
		return domain.CreateOrderResponse{
			Order:         order,
			CorrelationID: r.CorrelationID,
			Time:          time.Now().UTC(),
		}
	case domain.CancelOpenOrders:
		orders, err := g.rest.CancelOpenOrders(ctx, g.symbol)
		if err != nil {
			return g.errorAck(r.CorrelationID, "cancel open orders", err)
		}
		return domain.CancelResponse{
			Orders:        orders,
			CorrelationID: r.CorrelationID,
			Time:          time.Now().UTC(),
		}
	case domain.GetAccountBalances:
		balances, err := g.rest.AccountBalances(ctx)
		if err != nil {
			return g.errorAck(r.CorrelationID, "account balances", err)
		}
		return domain.BalancesResponse{
			Balances:      balances,
			CorrelationID: r.CorrelationID,
			Time:          time.Now().UTC(),
		}
	default:
		return g.errorAck(req.Correlation(), "unsupported request", nil)
	}
}

func (g *Gateway) errorAck(correlationID, op string, err error) domain.ErrorResponse {
	msg := op + " failed"
	if err != nil {
		msg = err.Error()
		g.logger.Error(op+" failed", slog.String("error", err.Error()), slog.String("correlation_id", correlationID))
	} else {
		g.logger.Error(op, slog.String("correlation_id", correlationID))
	}
	return domain.ErrorResponse{
		Message:       msg,
		CorrelationID: correlationID,
		Time:          time.Now().UTC(),
	}
}
