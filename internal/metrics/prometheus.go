package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// methodStats tracks statistics for a single RPC method, mirroring the
// teacher's metrics.methodStats.
type methodStats struct {
	totalCalls      int64
	successfulCalls int64
	failedCalls     int64
	totalDuration   time.Duration
}

// routeStats tracks statistics for a single HTTP route+status pair.
type routeStats struct {
	totalCalls    int64
	totalDuration time.Duration
}

// PrometheusMetrics implements Recorder with a hand-rolled Prometheus text
// exporter, thread-safe via sync.RWMutex.
type PrometheusMetrics struct {
	mu         sync.RWMutex
	rpcMethods map[string]*methodStats
	httpRoutes map[string]*routeStats
}

// NewPrometheusMetrics creates an empty metrics recorder.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		rpcMethods: make(map[string]*methodStats),
		httpRoutes: make(map[string]*routeStats),
	}
}

// RecordRPCCall records a single RPC call with its duration and outcome.
func (p *PrometheusMetrics) RecordRPCCall(method string, duration time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.rpcMethods[method]
	if !ok {
		s = &methodStats{}
		p.rpcMethods[method] = s
	}
	s.totalCalls++
	if success {
		s.successfulCalls++
	} else {
		s.failedCalls++
	}
	s.totalDuration += duration
}

// RecordHTTPRequest records a single HTTP request's route, status, and duration.
func (p *PrometheusMetrics) RecordHTTPRequest(route string, status int, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fmt.Sprintf("%s:%d", route, status)
	s, ok := p.httpRoutes[key]
	if !ok {
		s = &routeStats{}
		p.httpRoutes[key] = s
	}
	s.totalCalls++
	s.totalDuration += duration
}

// Export renders a Prometheus text-exposition snapshot.
func (p *PrometheusMetrics) Export() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP dexfeed_rpc_calls_total Total RPC calls by method and outcome.\n")
	b.WriteString("# TYPE dexfeed_rpc_calls_total counter\n")
	for _, method := range sortedKeys(p.rpcMethods) {
		s := p.rpcMethods[method]
		fmt.Fprintf(&b, "dexfeed_rpc_calls_total{method=%q,outcome=\"success\"} %d\n", method, s.successfulCalls)
		fmt.Fprintf(&b, "dexfeed_rpc_calls_total{method=%q,outcome=\"failure\"} %d\n", method, s.failedCalls)
	}

	b.WriteString("# HELP dexfeed_rpc_call_duration_seconds_sum Cumulative RPC call duration by method.\n")
	b.WriteString("# TYPE dexfeed_rpc_call_duration_seconds_sum counter\n")
	for _, method := range sortedKeys(p.rpcMethods) {
		s := p.rpcMethods[method]
		fmt.Fprintf(&b, "dexfeed_rpc_call_duration_seconds_sum{method=%q} %f\n", method, s.totalDuration.Seconds())
	}

	b.WriteString("# HELP dexfeed_http_requests_total Total HTTP requests by route and status.\n")
	b.WriteString("# TYPE dexfeed_http_requests_total counter\n")
	for _, key := range sortedRouteKeys(p.httpRoutes) {
		s := p.httpRoutes[key]
		parts := strings.SplitN(key, ":", 2)
		fmt.Fprintf(&b, "dexfeed_http_requests_total{route=%q,status=%q} %d\n", parts[0], parts[1], s.totalCalls)
	}

	return b.String()
}

func sortedKeys(m map[string]*methodStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRouteKeys(m map[string]*routeStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
