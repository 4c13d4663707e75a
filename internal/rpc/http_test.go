package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRPCResult(t *testing.T, w http.ResponseWriter, result interface{}) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	resp := Response{JSONRPC: "2.0", ID: 1, Result: raw}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestHTTPClient_Call_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRPCResult(t, w, map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	c, err := NewHTTPClient([]string{srv.URL}, 2*time.Second, nil, zerolog.Nop())
	require.NoError(t, err)

	raw, err := c.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":"yes"}`, string(raw))
}

func TestHTTPClient_Call_FailsOverToSecondEndpoint(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRPCResult(t, w, map[string]string{"ok": "yes"})
	}))
	defer good.Close()

	c, err := NewHTTPClient([]string{bad.URL, good.URL}, 2*time.Second, nil, zerolog.Nop())
	require.NoError(t, err)

	raw, err := c.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":"yes"}`, string(raw))
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRPCResult(t, w, map[string]interface{}{
			"value": map[string]string{"blockhash": "Bh1111111111111111111111111111111111111111"},
		})
	}))
	defer srv.Close()

	c, err := NewHTTPClient([]string{srv.URL}, 2*time.Second, nil, zerolog.Nop())
	require.NoError(t, err)

	hash, err := c.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bh1111111111111111111111111111111111111111", hash)
}

func TestHTTPClient_AllEndpointsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c, err := NewHTTPClient([]string{bad.URL}, 2*time.Second, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "ping", nil)
	assert.Error(t, err)
}

func TestSimpleHealthTracker_CircuitBreaksAfterFailures(t *testing.T) {
	tr := NewSimpleHealthTracker()
	assert.True(t, tr.IsHealthy("e1"))

	tr.RecordFailure("e1", assert.AnError)
	tr.RecordFailure("e1", assert.AnError)
	assert.True(t, tr.IsHealthy("e1"))
	tr.RecordFailure("e1", assert.AnError)
	assert.False(t, tr.IsHealthy("e1"))
}
