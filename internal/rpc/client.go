// Package rpc provides the JSON-RPC client used for recent-blockhash
// lookups and any builder-side chain reads (§4.11), adapted directly from
// the teacher's rpc package: the same RPCClient/RPCHealthTracker contracts,
// generalized from a multi-chain abstraction to this service's one chain.
package rpc

import (
	"context"
	"encoding/json"
)

// Client abstracts JSON-RPC communication with a Solana RPC node.
type Client interface {
	// Call executes a single JSON-RPC method call with endpoint failover.
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// GetLatestBlockhash returns the current recent blockhash, used by the
	// Quote/Swap API's finalization step (§4.6).
	GetLatestBlockhash(ctx context.Context) (string, error)

	// Close releases the client's resources.
	Close() error
}

// Request represents a single JSON-RPC request.
type Request struct {
	Method string
	Params interface{}
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// HealthTracker tracks RPC endpoint health for failover decisions.
type HealthTracker interface {
	RecordSuccess(endpoint string, durationMS int64)
	RecordFailure(endpoint string, err error)
	IsHealthy(endpoint string) bool
	GetBestEndpoint(endpoints []string) string
	Reset(endpoint string)
}

// EndpointHealth is the health snapshot of one RPC endpoint.
type EndpointHealth struct {
	Endpoint        string
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	AvgLatencyMS    int64
	LastSuccess     int64
	LastFailure     int64
	CircuitOpen     bool

	// ConsecutiveFailures and ConsecutiveSuccesses track the current streak
	// since the last outcome change, not lifetime totals — a long-healthy
	// endpoint that starts failing must trip the breaker after
	// FailureThreshold failures in a row, not after accumulating enough
	// failures to out-weigh its entire success history.
	ConsecutiveFailures  int64
	ConsecutiveSuccesses int64
}
