package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcsign/dexfeed/internal/apperr"
	"github.com/rs/zerolog"
)

// HTTPClient implements Client over HTTP JSON-RPC with round-robin +
// circuit-breaker failover across a list of endpoints, adapted directly
// from the teacher's rpc.HTTPRPCClient.
type HTTPClient struct {
	endpoints     []string
	currentIndex  int
	healthTracker HealthTracker
	httpClient    *http.Client
	requestID     atomic.Int64
	mu            sync.RWMutex
	log           zerolog.Logger
}

// NewHTTPClient constructs an HTTPClient. A nil healthTracker gets a
// SimpleHealthTracker.
func NewHTTPClient(endpoints []string, timeout time.Duration, healthTracker HealthTracker, log zerolog.Logger) (*HTTPClient, error) {
	if len(endpoints) == 0 {
		return nil, apperr.NewPermanent(apperr.CodeRPCUnavailable, "at least one RPC endpoint is required", nil)
	}
	if healthTracker == nil {
		healthTracker = NewSimpleHealthTracker()
	}
	return &HTTPClient{
		endpoints:     endpoints,
		healthTracker: healthTracker,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
	}, nil
}

func (c *HTTPClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	attempted := make(map[string]bool)
	var lastErr error

	for len(attempted) < len(c.endpoints) {
		endpoint := c.nextHealthyEndpoint(attempted)
		if endpoint == "" {
			break
		}
		attempted[endpoint] = true

		result, err := c.callEndpoint(ctx, endpoint, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Str("endpoint", endpoint).Str("method", method).Msg("rpc call failed, trying next endpoint")
	}

	return nil, apperr.NewRetryable(apperr.CodeRPCUnavailable, "all RPC endpoints failed", lastErr)
}

// GetLatestBlockhash wraps the getLatestBlockhash RPC method used by the
// Quote/Swap API's finalization step (§4.6).
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, "getLatestBlockhash", []interface{}{map[string]string{"commitment": "confirmed"}})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.NewNonRetryable(apperr.CodeEncodingFailure, "malformed getLatestBlockhash response", err)
	}
	if parsed.Value.Blockhash == "" {
		return "", apperr.NewNonRetryable(apperr.CodeEncodingFailure, "empty blockhash in response", nil)
	}
	return parsed.Value.Blockhash, nil
}

func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) callEndpoint(ctx context.Context, endpoint, method string, params interface{}) (json.RawMessage, error) {
	start := time.Now()

	reqID := c.requestID.Add(1)
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.healthTracker.RecordFailure(endpoint, err)
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.healthTracker.RecordFailure(endpoint, err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.healthTracker.RecordFailure(endpoint, fmt.Errorf("http %d", resp.StatusCode))
		return nil, fmt.Errorf("http error %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.healthTracker.RecordFailure(endpoint, err)
		return nil, fmt.Errorf("parse json-rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		c.healthTracker.RecordFailure(endpoint, rpcResp.Error)
		return nil, fmt.Errorf("json-rpc error: %s", rpcResp.Error.Message)
	}

	c.healthTracker.RecordSuccess(endpoint, time.Since(start).Milliseconds())
	return rpcResp.Result, nil
}

func (c *HTTPClient) nextHealthyEndpoint(attempted map[string]bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.endpoints); i++ {
		idx := (c.currentIndex + i) % len(c.endpoints)
		endpoint := c.endpoints[idx]
		if attempted[endpoint] {
			continue
		}
		if c.healthTracker.IsHealthy(endpoint) {
			c.currentIndex = (idx + 1) % len(c.endpoints)
			return endpoint
		}
	}
	for _, endpoint := range c.endpoints {
		if !attempted[endpoint] {
			return endpoint
		}
	}
	return ""
}
