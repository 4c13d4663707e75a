// Package fallback implements the External Price Fallback (§4.7): when the
// Price Index has no entry for a mint (or reports a stale/zero price), it
// queries an external aggregator for a SOL->token quote and, on an
// admissible single-hop result, returns the derived Observation; the
// caller writes it back into the Price Index.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/arcsign/dexfeed/internal/apperr"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/arcsign/dexfeed/internal/rpc"
	"github.com/rs/zerolog"
)

// probeAmountLamports is the fixed SOL amount (in lamports) quoted against
// the aggregator when probing a mint's price.
const probeAmountLamports = 1_000_000_000 // 1 SOL

// aggregatorQuoteResponse is the subset of a Jupiter-style quote response
// this fallback consumes.
type aggregatorQuoteResponse struct {
	OutAmount string `json:"outAmount"`
	RoutePlan []struct {
		SwapInfo struct {
			AMMKey string `json:"ammKey"`
			Label  string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

// Fallback queries an aggregator on a Price Index miss.
type Fallback struct {
	aggregatorURL string
	httpClient    *http.Client
	health        rpc.HealthTracker
	labelToProgram map[string]string
	isSupported   func(programID string) bool
	log           zerolog.Logger
}

// Config configures a Fallback.
type Config struct {
	AggregatorURL  string
	HTTPClient     *http.Client
	LabelToProgram map[string]string
	IsSupported    func(programID string) bool
	Log            zerolog.Logger
}

// New constructs a Fallback, reusing the RPC Client's circuit-breaker idiom
// (rpc.SimpleHealthTracker) so a degraded aggregator is not hammered.
func New(cfg Config) *Fallback {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Fallback{
		aggregatorURL:  cfg.AggregatorURL,
		httpClient:     httpClient,
		health:         rpc.NewSimpleHealthTracker(),
		labelToProgram: cfg.LabelToProgram,
		isSupported:    cfg.IsSupported,
		log:            cfg.Log,
	}
}

// Lookup probes the aggregator for mint and returns a derived Observation
// ready for write-back into the Price Index, or an error if no admissible
// quote could be found.
func (f *Fallback) Lookup(ctx context.Context, mint string) (models.Observation, error) {
	if !f.health.IsHealthy(f.aggregatorURL) {
		return models.Observation{}, apperr.NewRetryable(apperr.CodeRPCUnavailable, "aggregator circuit open", nil)
	}

	start := time.Now()
	resp, err := f.queryAggregator(ctx, mint)
	if err != nil {
		f.health.RecordFailure(f.aggregatorURL, err)
		return models.Observation{}, apperr.NewRetryable(apperr.CodeRPCTimeout, "aggregator request failed", err)
	}
	f.health.RecordSuccess(f.aggregatorURL, time.Since(start).Milliseconds())

	if len(resp.RoutePlan) != 1 {
		return models.Observation{}, apperr.NewNonRetryable(apperr.CodeLookupMiss, "aggregator route is not single-hop", nil)
	}

	label := resp.RoutePlan[0].SwapInfo.Label
	programID, ok := f.labelToProgram[label]
	if !ok {
		return models.Observation{}, apperr.NewNonRetryable(apperr.CodeUnsupportedProtocol, fmt.Sprintf("no program mapping for aggregator label %q", label), nil)
	}
	if f.isSupported == nil || !f.isSupported(programID) {
		return models.Observation{}, apperr.NewNonRetryable(apperr.CodeUnsupportedProtocol, fmt.Sprintf("aggregator-mapped program %q is not a supported builder", programID), nil)
	}

	var outAmount float64
	if _, err := fmt.Sscanf(resp.OutAmount, "%f", &outAmount); err != nil || outAmount <= 0 {
		return models.Observation{}, apperr.NewNonRetryable(apperr.CodeLookupMiss, "aggregator returned non-positive outAmount", err)
	}

	avgPrice := float64(probeAmountLamports) / outAmount
	now := time.Now().UnixMilli()

	return models.Observation{
		Mint:       mint,
		Pool:       resp.RoutePlan[0].SwapInfo.AMMKey,
		AvgPrice:   avgPrice,
		ProgramID:  programID,
		Slot:       "0",
		StoredAt:   now,
		LastAccess: now,
	}, nil
}

func (f *Fallback) queryAggregator(ctx context.Context, mint string) (*aggregatorQuoteResponse, error) {
	q := url.Values{}
	q.Set("inputMint", models.WSOLMint)
	q.Set("outputMint", mint)
	q.Set("amount", fmt.Sprintf("%d", probeAmountLamports))

	reqURL := f.aggregatorURL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator returned http %d: %s", resp.StatusCode, string(body))
	}

	var parsed aggregatorQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse aggregator response: %w", err)
	}
	return &parsed, nil
}

// DefaultLabelToProgram maps the aggregator route labels for this
// repository's two shipped builders (registerBuilders in cmd/dexfeed) to
// their program identifiers, per spec.md §4.7. A deployment that registers
// additional builders must extend this table with their aggregator labels
// or fallback lookups against those protocols will be rejected as
// unmapped.
var DefaultLabelToProgram = map[string]string{
	"Raydium":  "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
	"Pump.fun": "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
}
