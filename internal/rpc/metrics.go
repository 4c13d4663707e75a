package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arcsign/dexfeed/internal/metrics"
)

// MetricsClient decorates a Client, recording every call's method, duration,
// and outcome through a metrics.Recorder. Adapted from the teacher's
// rpc.MetricsRPCClient wrapper around RPCClient; generalized from a
// per-chain client to this service's single Solana RPC client.
type MetricsClient struct {
	next Client
	rec  metrics.Recorder
}

// NewMetricsClient wraps next so every call it serves is recorded through rec.
func NewMetricsClient(next Client, rec metrics.Recorder) *MetricsClient {
	return &MetricsClient{next: next, rec: rec}
}

func (c *MetricsClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.next.Call(ctx, method, params)
	c.rec.RecordRPCCall(method, time.Since(start), err == nil)
	return result, err
}

func (c *MetricsClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	start := time.Now()
	hash, err := c.next.GetLatestBlockhash(ctx)
	c.rec.RecordRPCCall("getLatestBlockhash", time.Since(start), err == nil)
	return hash, err
}

func (c *MetricsClient) Close() error { return c.next.Close() }
