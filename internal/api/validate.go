package api

import (
	"fmt"

	"github.com/arcsign/dexfeed/internal/models"
)

const (
	minSignerLength = 32
	minSlippageBps  = 1000
	maxSlippageBps  = 10000
)

// validateSwapRequest checks the POST /api/swap/:mint body against spec.md
// §4.6's validation rules.
func validateSwapRequest(mint string, req *models.SwapRequest) error {
	if len(req.Signer) < minSignerLength {
		return fmt.Errorf("signer must be at least %d characters", minSignerLength)
	}
	if req.Type != models.SideBuy && req.Type != models.SideSell {
		return fmt.Errorf("type must be %q or %q", models.SideBuy, models.SideSell)
	}

	haveIn := req.AmountIn != nil && *req.AmountIn > 0
	haveOut := req.AmountOut != nil && *req.AmountOut > 0
	if haveIn == haveOut {
		return fmt.Errorf("exactly one of amountIn, amountOut must be given and positive")
	}

	if req.SlippageBps < minSlippageBps || req.SlippageBps > maxSlippageBps {
		return fmt.Errorf("slippageBps must be in [%d, %d]", minSlippageBps, maxSlippageBps)
	}

	if req.Encoding == "" {
		req.Encoding = models.EncodingBase64
	}
	if req.Encoding != models.EncodingBase64 && req.Encoding != models.EncodingBase58 {
		return fmt.Errorf("encoding must be %q or %q", models.EncodingBase64, models.EncodingBase58)
	}

	if req.Quote != nil && req.Quote.Mint != mint {
		return fmt.Errorf("quote override mint must match path mint")
	}

	return nil
}

// projectAmounts derives input/output raw amounts from the request and the
// resolved observation's avgPrice, per spec.md §4.6's four buy/sell x
// amountIn/amountOut cases.
func projectAmounts(mint string, req models.SwapRequest, obs models.Observation) models.BuildParams {
	params := models.BuildParams{
		Mint:        mint,
		Signer:      req.Signer,
		Type:        req.Type,
		SlippageBps: req.SlippageBps,
		Observation: obs,
	}

	switch {
	case req.Type == models.SideBuy && req.AmountIn != nil:
		params.InputAmount = uint64(*req.AmountIn)
		params.OutputAmount = uint64(*req.AmountIn / obs.AvgPrice)
	case req.Type == models.SideBuy && req.AmountOut != nil:
		params.OutputAmount = uint64(*req.AmountOut)
		params.InputAmount = uint64(*req.AmountOut * obs.AvgPrice)
	case req.Type == models.SideSell && req.AmountIn != nil:
		params.InputAmount = uint64(*req.AmountIn)
		params.OutputAmount = uint64(roundDown(*req.AmountIn * obs.AvgPrice))
	case req.Type == models.SideSell && req.AmountOut != nil:
		params.OutputAmount = uint64(*req.AmountOut)
		params.InputAmount = uint64(roundDown(*req.AmountOut / obs.AvgPrice))
	}

	return params
}
