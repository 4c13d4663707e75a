package rpc

import (
	"sync"
	"time"
)

// HealthConfig tunes a SimpleHealthTracker's circuit-breaker behavior. Zero
// values are replaced by DefaultHealthConfig's defaults in
// NewSimpleHealthTrackerWithConfig.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures that opens an
	// endpoint's circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes required to
	// close a circuit that is currently open.
	SuccessThreshold int
	// CircuitOpenWindow is how long an open circuit is treated as unhealthy
	// before it is eligible to be retried.
	CircuitOpenWindow time.Duration
	// LatencyDecay is the EMA weight given to a new latency sample, in
	// (0, 1]. Higher values track recent latency more aggressively.
	LatencyDecay float64
	// RecencyWindow is how long a past failure keeps dragging an endpoint's
	// ranking score down, even once its circuit has closed again.
	RecencyWindow time.Duration
}

// DefaultHealthConfig returns this tracker's default thresholds.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold:  3,
		SuccessThreshold:  2,
		CircuitOpenWindow: 30 * time.Second,
		LatencyDecay:      0.2,
		RecencyWindow:     2 * time.Minute,
	}
}

func (c HealthConfig) withDefaults() HealthConfig {
	d := DefaultHealthConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.CircuitOpenWindow <= 0 {
		c.CircuitOpenWindow = d.CircuitOpenWindow
	}
	if c.LatencyDecay <= 0 || c.LatencyDecay > 1 {
		c.LatencyDecay = d.LatencyDecay
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = d.RecencyWindow
	}
	return c
}

// SimpleHealthTracker implements HealthTracker with a circuit breaker over
// per-endpoint call history. The circuit-open/close bookkeeping follows the
// teacher's rpc.SimpleHealthTracker; the ranking score and latency smoothing
// are this service's own composition (see GetBestEndpoint), since failover
// here is a fixed pool of RPC nodes rather than the teacher's many-chain
// endpoint set.
type SimpleHealthTracker struct {
	mu     sync.RWMutex
	health map[string]*EndpointHealth
	cfg    HealthConfig
}

// NewSimpleHealthTracker constructs a tracker using DefaultHealthConfig.
func NewSimpleHealthTracker() *SimpleHealthTracker {
	return NewSimpleHealthTrackerWithConfig(HealthConfig{})
}

// NewSimpleHealthTrackerWithConfig constructs a tracker with cfg, falling
// back to DefaultHealthConfig for any zero field. Deployments wire cfg from
// their own Config rather than hardcoding thresholds here.
func NewSimpleHealthTrackerWithConfig(cfg HealthConfig) *SimpleHealthTracker {
	return &SimpleHealthTracker{
		health: make(map[string]*EndpointHealth),
		cfg:    cfg.withDefaults(),
	}
}

func (t *SimpleHealthTracker) RecordSuccess(endpoint string, durationMS int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.getOrCreate(endpoint)
	h.TotalCalls++
	h.SuccessfulCalls++
	h.LastSuccess = time.Now().Unix()
	h.ConsecutiveSuccesses++
	h.ConsecutiveFailures = 0

	if h.AvgLatencyMS == 0 {
		h.AvgLatencyMS = durationMS
	} else {
		w := t.cfg.LatencyDecay
		h.AvgLatencyMS = int64((1-w)*float64(h.AvgLatencyMS) + w*float64(durationMS))
	}

	if h.CircuitOpen && h.ConsecutiveSuccesses >= int64(t.cfg.SuccessThreshold) {
		h.CircuitOpen = false
	}
}

func (t *SimpleHealthTracker) RecordFailure(endpoint string, _ error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.getOrCreate(endpoint)
	h.TotalCalls++
	h.FailedCalls++
	h.LastFailure = time.Now().Unix()
	h.ConsecutiveFailures++
	h.ConsecutiveSuccesses = 0

	if h.ConsecutiveFailures >= int64(t.cfg.FailureThreshold) {
		h.CircuitOpen = true
	}
}

func (t *SimpleHealthTracker) IsHealthy(endpoint string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isHealthyLocked(endpoint)
}

// GetBestEndpoint ranks healthy endpoints by a recency-weighted success
// rate: a raw success rate, discounted while the endpoint's most recent
// failure is still within RecencyWindow. Unlike a latency-weighted score,
// this keeps a node that just recovered from flapping behind one with a
// clean recent history even if its average latency happens to be lower.
func (t *SimpleHealthTracker) GetBestEndpoint(endpoints []string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best string
	bestScore := -1.0
	for _, endpoint := range endpoints {
		if !t.isHealthyLocked(endpoint) {
			continue
		}
		h, ok := t.health[endpoint]
		if !ok {
			return endpoint
		}
		successRate := float64(h.SuccessfulCalls) / float64(h.TotalCalls)
		score := successRate * t.recencyFactorLocked(h)
		if score > bestScore {
			bestScore = score
			best = endpoint
		}
	}
	if best == "" && len(endpoints) > 0 {
		return endpoints[0]
	}
	return best
}

// recencyFactorLocked returns 1.0 once a failure is older than RecencyWindow,
// and linearly ramps up from 0.5 as it ages within the window. Caller must
// hold t.mu.
func (t *SimpleHealthTracker) recencyFactorLocked(h *EndpointHealth) float64 {
	if h.LastFailure == 0 {
		return 1.0
	}
	elapsed := time.Since(time.Unix(h.LastFailure, 0))
	if elapsed >= t.cfg.RecencyWindow {
		return 1.0
	}
	return 0.5 + 0.5*elapsed.Seconds()/t.cfg.RecencyWindow.Seconds()
}

func (t *SimpleHealthTracker) isHealthyLocked(endpoint string) bool {
	h, ok := t.health[endpoint]
	if !ok {
		return true
	}
	if h.CircuitOpen && time.Now().Unix()-h.LastFailure < int64(t.cfg.CircuitOpenWindow.Seconds()) {
		return false
	}
	return true
}

func (t *SimpleHealthTracker) Reset(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.health, endpoint)
}

func (t *SimpleHealthTracker) getOrCreate(endpoint string) *EndpointHealth {
	h, ok := t.health[endpoint]
	if !ok {
		h = &EndpointHealth{Endpoint: endpoint}
		t.health[endpoint] = h
	}
	return h
}
