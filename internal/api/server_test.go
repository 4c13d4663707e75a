package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcsign/dexfeed/internal/builder"
	"github.com/arcsign/dexfeed/internal/builder/amm"
	"github.com/arcsign/dexfeed/internal/metrics"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/arcsign/dexfeed/internal/priceindex"
	"github.com/arcsign/dexfeed/internal/stats"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPCClient struct {
	blockhash string
	err       error
}

func (f *fakeRPCClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeRPCClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.blockhash, nil
}

func (f *fakeRPCClient) Close() error { return nil }

const testProgramID = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
const testPool = "8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR"
const testMint = "CktRuQ2mttgRGkXJtyksdKHjUdc2C4TgDzyB98oEzy8"
const testSigner = "GgBaCs3NCBuZN12kCJgAW63ydqohFkHEdfdEXBPzLHq"
const testBlockhash = "LbUiWL3xVV8hTFYBVdbTNrpDo41NKS6o3LHHuDzjfcY"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := builder.NewRegistry()
	require.NoError(t, reg.Register(solana.MustPublicKeyFromBase58(testProgramID), amm.New))

	cache := priceindex.New(priceindex.Config{
		CeilingBytes: 1 << 20,
		Whitelist:    reg.Whitelist(),
		Logger:       zerolog.Nop(),
	})
	cache.Put(models.Observation{
		Mint:      testMint,
		Pool:      testPool,
		AvgPrice:  2.0,
		ProgramID: testProgramID,
		Slot:      "100",
		StoredAt:  1,
	})

	return New(Config{
		Cache:     cache,
		Registry:  reg,
		RPCClient: &fakeRPCClient{blockhash: testBlockhash},
		Metrics:   metrics.NewPrometheusMetrics(),
		Pipeline:  &stats.Pipeline{},
		Log:       zerolog.Nop(),
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestHandleQuote_CacheHit(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/quote/"+testMint, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, testPool, resp.Quote.Pool)
}

func TestHandleQuote_Miss(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/quote/unknown-mint", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSwap_ValidationRejectsBadSlippage(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(models.SwapRequest{
		Signer:      testSigner,
		Type:        models.SideBuy,
		AmountIn:    floatPtr(10),
		SlippageBps: 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/swap/"+testMint, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSwap_BuyWithAmountIn_Succeeds(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(models.SwapRequest{
		Signer:      testSigner,
		Type:        models.SideBuy,
		AmountIn:    floatPtr(10),
		SlippageBps: 5000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/swap/"+testMint, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.SwapResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Tx)
}

// TestHandleSwap_UnsupportedProtocol covers the registry-removed scenario
// spec.md §4.5 calls out: the Price Index was populated while a builder was
// registered, then the builder was dropped from the (separately-whitelisted)
// dispatch registry — e.g. a deploy that narrows supported protocols.
func TestHandleSwap_UnsupportedProtocol(t *testing.T) {
	unknownProgram := "66666666666666666666666666666666666666666"

	reg := builder.NewRegistry()
	require.NoError(t, reg.Register(solana.MustPublicKeyFromBase58(testProgramID), amm.New))

	permissiveCache := priceindex.New(priceindex.Config{
		CeilingBytes: 1 << 20,
		Whitelist:    func(string) bool { return true },
		Logger:       zerolog.Nop(),
	})
	permissiveCache.Put(models.Observation{
		Mint:      testMint,
		Pool:      testPool,
		AvgPrice:  2.0,
		ProgramID: unknownProgram,
		Slot:      "100",
		StoredAt:  1,
	})

	s := New(Config{
		Cache:     permissiveCache,
		Registry:  reg,
		RPCClient: &fakeRPCClient{blockhash: testBlockhash},
		Metrics:   metrics.NewPrometheusMetrics(),
		Pipeline:  &stats.Pipeline{},
		Log:       zerolog.Nop(),
	})

	body, _ := json.Marshal(models.SwapRequest{
		Signer:      testSigner,
		Type:        models.SideBuy,
		AmountIn:    floatPtr(10),
		SlippageBps: 5000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/swap/"+testMint, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp swapErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.SupportedProtocols, testProgramID)
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dexfeed_http_requests_total")
}

func floatPtr(f float64) *float64 { return &f }
