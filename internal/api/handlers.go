package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/arcsign/dexfeed/internal/apperr"
	"github.com/arcsign/dexfeed/internal/models"
)

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Seconds(),
	})
}

type quoteResponse struct {
	Success bool             `json:"success"`
	Quote   *quotePayload    `json:"quote,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type quotePayload struct {
	Mint      string  `json:"mint"`
	Pool      string  `json:"pool"`
	AvgPrice  float64 `json:"avgPrice"`
	ProgramID string  `json:"programId"`
	Slot      string  `json:"slot"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")
	if mint == "" {
		writeJSON(w, http.StatusBadRequest, quoteResponse{Success: false, Error: "mint is required"})
		return
	}

	obs, err := s.resolveObservation(r.Context(), mint, nil)
	if err != nil {
		s.writeObservationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Success: true,
		Quote: &quotePayload{
			Mint:      obs.Mint,
			Pool:      obs.Pool,
			AvgPrice:  obs.AvgPrice,
			ProgramID: obs.ProgramID,
			Slot:      obs.Slot,
		},
	})
}

type swapErrorResponse struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error"`
	SupportedProtocols []string `json:"supportedProtocols,omitempty"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")
	if mint == "" {
		writeJSON(w, http.StatusBadRequest, swapErrorResponse{Success: false, Error: "mint is required"})
		return
	}

	var req models.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, swapErrorResponse{Success: false, Error: "malformed request body"})
		return
	}

	if err := validateSwapRequest(mint, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, swapErrorResponse{Success: false, Error: err.Error()})
		return
	}

	obs, err := s.resolveObservation(r.Context(), mint, req.Quote)
	if err != nil {
		s.writeSwapObservationError(w, err)
		return
	}

	params := projectAmounts(mint, req, obs)

	if !s.registry.HasBuilder(obs.ProgramID) {
		writeJSON(w, http.StatusBadRequest, swapErrorResponse{
			Success:            false,
			Error:              "unsupported protocol: " + obs.ProgramID,
			SupportedProtocols: s.registry.SupportedProgramIds(),
		})
		return
	}

	instructions, err := s.registry.Build(r.Context(), obs.ProgramID, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, swapErrorResponse{Success: false, Error: "failed to build swap instructions"})
		return
	}

	encoded, err := s.finalize(r.Context(), req.Signer, instructions, req.Encoding)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, swapErrorResponse{Success: false, Error: "failed to finalize transaction"})
		return
	}

	writeJSON(w, http.StatusOK, models.SwapResult{Success: true, Tx: encoded})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.metrics.Export()))
	w.Write([]byte(s.pipelineExposition()))
}

// pipelineExposition renders the ingestion pipeline's counters (§4.1/§5) in
// the same Prometheus text format the metrics Recorder uses, so a scrape of
// /metrics covers both RPC/HTTP outcomes and ingestion throughput.
func (s *Server) pipelineExposition() string {
	snap := s.pipeline.Snapshot()
	return "# HELP dexfeed_pipeline_transactions_received_total Transactions received from the source.\n" +
		"# TYPE dexfeed_pipeline_transactions_received_total counter\n" +
		formatCounter("dexfeed_pipeline_transactions_received_total", snap.TransactionsReceived) +
		"# HELP dexfeed_pipeline_trades_extracted_total Trade candidates extracted.\n" +
		"# TYPE dexfeed_pipeline_trades_extracted_total counter\n" +
		formatCounter("dexfeed_pipeline_trades_extracted_total", snap.TradesExtracted) +
		"# HELP dexfeed_pipeline_rejections_total Trade candidates rejected by the validator.\n" +
		"# TYPE dexfeed_pipeline_rejections_total counter\n" +
		formatCounter("dexfeed_pipeline_rejections_total", snap.Rejections) +
		"# HELP dexfeed_pipeline_observations_stored_total Observations stored into the price index.\n" +
		"# TYPE dexfeed_pipeline_observations_stored_total counter\n" +
		formatCounter("dexfeed_pipeline_observations_stored_total", snap.ObservationsStored)
}

func formatCounter(name string, value int64) string {
	return name + " " + strconv.FormatInt(value, 10) + "\n"
}

// resolveObservation implements the quote-lookup chain of §4.6/§4.7: an
// explicit request override, then the Price Index, then the External Price
// Fallback, with a successful fallback hit written back into D.
func (s *Server) resolveObservation(ctx context.Context, mint string, override *models.QuoteOverride) (models.Observation, error) {
	if override != nil {
		if override.Mint != mint {
			return models.Observation{}, apperr.NewNonRetryable(apperr.CodeValidation, "quote override mint does not match path", nil)
		}
		obs := models.Observation{
			Mint:      override.Mint,
			Pool:      override.Pool,
			AvgPrice:  override.AvgPrice,
			ProgramID: override.ProgramID,
			Slot:      override.Slot,
		}
		if !obs.Valid(s.registry.Whitelist()) {
			return models.Observation{}, apperr.NewNonRetryable(apperr.CodeValidation, "quote override failed validation", nil)
		}
		return obs, nil
	}

	if obs, ok := s.cache.Get(mint); ok && obs.AvgPrice > 0 {
		return obs, nil
	}

	if s.fallback == nil {
		return models.Observation{}, apperr.NewNonRetryable(apperr.CodeLookupMiss, "mint not found", nil)
	}

	obs, err := s.fallback.Lookup(ctx, mint)
	if err != nil {
		if apperr.ClassificationOf(err) == apperr.NonRetryable {
			return models.Observation{}, apperr.NewNonRetryable(apperr.CodeLookupMiss, "mint not found", err)
		}
		return models.Observation{}, apperr.NewRetryable(apperr.CodeRPCUnavailable, "price fallback temporarily unavailable", err)
	}
	s.cache.Put(obs)
	return obs, nil
}

func (s *Server) writeObservationError(w http.ResponseWriter, err error) {
	if apperr.ClassificationOf(err) == apperr.NonRetryable {
		writeJSON(w, http.StatusNotFound, quoteResponse{Success: false, Error: "mint not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, quoteResponse{Success: false, Error: "unexpected failure"})
}

func (s *Server) writeSwapObservationError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Classification == apperr.NonRetryable {
		status := http.StatusNotFound
		if appErr.Code == apperr.CodeValidation {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, swapErrorResponse{Success: false, Error: appErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, swapErrorResponse{Success: false, Error: "unexpected failure"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// roundDown mirrors the floor semantics spec.md §4.6 specifies for the
// sell-side amount projections.
func roundDown(f float64) float64 {
	return math.Floor(f)
}
