// Package source implements the Transaction Source (§4.1): a long-lived
// subscription to a push provider that emits decoded transaction records,
// with reconnection and keepalive. Two interchangeable transports (gRPC
// bidirectional stream, WebSocket framed JSON-RPC) share one connection
// state machine, mirroring the teacher's WebSocketRPCClient
// reconnect()/readLoop() split generalized into a reusable component.
package source

import (
	"context"

	"github.com/arcsign/dexfeed/internal/models"
)

// Source subscribes to a push provider restricted to accounts, at the
// given commitment, and emits decoded transaction records on the returned
// channel until Close is called. ctx bounds the initial connection only;
// cancelling it later does not stop emission or reconnection.
type Source interface {
	Subscribe(ctx context.Context, accounts []string, commitment models.Commitment) (<-chan *models.TransactionRecord, error)
	Stats() Stats
	Close() error
}

// Stats mirrors spec.md §4.1's ingestion counters — tolerant of
// non-serialized reads per §5, backed by sync/atomic in the state machine.
type Stats struct {
	TransactionsReceived int64
	Errors               int64
	StartTimeUnixMS       int64
	State                 string
	ConnectionID          string
}
