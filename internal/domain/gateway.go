package domain

import "context"

// MarketGateway is the boundary to the live exchange. It owns all
// transport concerns (connections, retries, threading); the execution
// core only hands it fully-formed requests and reacts to the events and
// acks it delivers back.
type MarketGateway interface {
	// SendRequests submits the given requests to the venue. Acks arrive
	// asynchronously through the controller's ack entry point.
	SendRequests(ctx context.Context, reqs []OrderRequest) error
}

// EventSink receives market events and request acks. Implemented by the
// execution controller; used by gateways and the historical replayer.
type EventSink interface {
	ProcessEvents(ctx context.Context, batch []MarketEvent)
	ProcessAck(ctx context.Context, ack RequestAck)
}
