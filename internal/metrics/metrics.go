// Package metrics provides observability for RPC calls and HTTP requests.
// Modeled directly on the teacher's metrics.ChainMetrics / PrometheusMetrics
// pair: the teacher's own Prometheus exporter is hand-rolled rather than
// built on client_golang, and no client_golang usage appears anywhere in
// the retrieved pack, so this stays hand-rolled too.
package metrics

import "time"

// Recorder defines the interface for recording and querying service metrics.
//
// Contract:
//   - RecordRPCCall and RecordHTTPRequest MUST be safe for concurrent use.
//   - Export MUST return a Prometheus-text-exposition-compatible payload.
type Recorder interface {
	RecordRPCCall(method string, duration time.Duration, success bool)
	RecordHTTPRequest(route string, status int, duration time.Duration)
	Export() string
}
