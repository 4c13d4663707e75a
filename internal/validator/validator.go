// Package validator implements the Trade Validator (§4.3): it filters and
// repairs trade candidates, producing either an Observation or a rejection
// reason for each one.
package validator

import (
	"math"
	"strconv"
	"time"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/rs/zerolog"
)

// lamportDeltaThreshold is the minimum absolute SOL-balance delta (in
// lamports) considered significant for the balance-delta fallback (§4.3
// step 4).
const lamportDeltaThreshold = 1_000_000

// Rejection carries a human-readable reason for a candidate that could not
// be reduced to an Observation. Reasons are counted by callers but never
// propagated further (§4.3, §7).
type Rejection struct {
	Candidate models.TradeCandidate
	Reason    string
}

// Validator reduces a batch of sibling TradeCandidates (all drawn from one
// transaction) into Observations, using the whitelist to gate the final
// admission check (§4.3 step 7).
type Validator struct {
	whitelist func(programID string) bool
	log       zerolog.Logger
}

// New constructs a Validator.
func New(whitelist func(programID string) bool, log zerolog.Logger) *Validator {
	return &Validator{whitelist: whitelist, log: log}
}

// Validate applies the seven-step pipeline from §4.3 to every candidate
// from trades, using memeEvents and meta for the pool-resolution and
// balance-delta fallbacks. It returns one Observation per admitted
// candidate and one Rejection per discarded candidate — §8 invariant 5
// (exactly one of {dropped, yielded >=1 Observation}) holds per transaction
// as a whole, not necessarily per individual candidate.
func (v *Validator) Validate(trades []models.TradeCandidate, memeEvents []models.MemeEvent, meta models.TxMeta) ([]models.Observation, []Rejection) {
	var observations []models.Observation
	var rejections []Rejection

	// Step 1: SOL-SOL filter.
	filtered := make([]models.TradeCandidate, 0, len(trades))
	for _, c := range trades {
		if c.InputMint == models.WSOLMint && c.OutputMint == models.WSOLMint {
			rejections = append(rejections, Rejection{Candidate: c, Reason: "sol-sol noise"})
			continue
		}
		filtered = append(filtered, c)
	}

	// Step 2: amount repair, borrowing from siblings sharing the transaction.
	repairAmounts(filtered)

	for _, c := range filtered {
		obs, reason := v.reduce(c, filtered, memeEvents, meta)
		if reason != "" {
			rejections = append(rejections, Rejection{Candidate: c, Reason: reason})
			continue
		}
		observations = append(observations, obs)
	}

	return observations, rejections
}

func (v *Validator) reduce(c models.TradeCandidate, siblings []models.TradeCandidate, memeEvents []models.MemeEvent, meta models.TxMeta) (models.Observation, string) {
	// Step 3: average-price computation.
	avgPrice := computeAvgPrice(c)

	// Step 4: balance-delta fallback.
	if avgPrice == 0 {
		avgPrice = balanceDeltaFallback(c, meta)
	}

	// Step 5: pool resolution.
	pool := c.Pool
	if pool == "" {
		pool = resolvePoolFromMemeEvents(c, memeEvents)
	}

	// Step 6: mint resolution.
	mint := c.OutputMint
	if mint == models.WSOLMint || mint == "" {
		mint = c.InputMint
	}
	if mint == models.WSOLMint || mint == "" {
		mint = borrowMintFromSibling(c, siblings)
	}

	// Step 7: final validation.
	if mint == "" || mint == models.WSOLMint {
		return models.Observation{}, "missing or sentinel mint"
	}
	if pool == "" {
		return models.Observation{}, "missing pool"
	}
	if avgPrice <= 0 {
		return models.Observation{}, "non-positive avgPrice"
	}
	if c.ProgramID == "" || v.whitelist == nil || !v.whitelist(c.ProgramID) {
		return models.Observation{}, "programId not whitelisted"
	}
	if c.Slot == 0 {
		return models.Observation{}, "missing slot"
	}

	now := time.Now().UnixMilli()
	return models.Observation{
		Mint:       mint,
		Pool:       pool,
		AvgPrice:   avgPrice,
		ProgramID:  c.ProgramID,
		Slot:       slotString(c.Slot),
		StoredAt:   now,
		LastAccess: now,
	}, ""
}

// computeAvgPrice implements §4.3 step 3.
func computeAvgPrice(c models.TradeCandidate) float64 {
	if c.InputAmountRaw == 0 || c.OutputAmountRaw == 0 {
		return 0
	}
	in, out := float64(c.InputAmountRaw), float64(c.OutputAmountRaw)
	if c.Type == models.TradeSell {
		return out / in
	}
	return in / out
}

// repairAmounts implements §4.3 step 2: a candidate with a zero input or
// output amount borrows the missing side from a sibling sharing a mint
// with non-zero amounts, falling back to the first sibling with any
// non-zero amounts.
func repairAmounts(candidates []models.TradeCandidate) {
	var firstNonZero *models.TradeCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.InputAmountRaw != 0 && c.OutputAmountRaw != 0 && firstNonZero == nil {
			firstNonZero = c
		}
	}

	for i := range candidates {
		c := &candidates[i]
		if c.InputAmountRaw != 0 && c.OutputAmountRaw != 0 {
			continue
		}
		donor := findSiblingDonor(c, candidates)
		if donor == nil {
			donor = firstNonZero
		}
		if donor == nil {
			continue
		}
		if c.InputAmountRaw == 0 {
			c.InputAmountRaw = donor.InputAmountRaw
		}
		if c.OutputAmountRaw == 0 {
			c.OutputAmountRaw = donor.OutputAmountRaw
		}
	}
}

func findSiblingDonor(c *models.TradeCandidate, candidates []models.TradeCandidate) *models.TradeCandidate {
	for i := range candidates {
		o := &candidates[i]
		if o == c || o.InputAmountRaw == 0 || o.OutputAmountRaw == 0 {
			continue
		}
		if o.InputMint == c.InputMint || o.InputMint == c.OutputMint ||
			o.OutputMint == c.InputMint || o.OutputMint == c.OutputMint {
			return o
		}
	}
	return nil
}

// balanceDeltaFallback implements §4.3 step 4.
func balanceDeltaFallback(c models.TradeCandidate, meta models.TxMeta) float64 {
	solIdx, solDelta := largestSOLDelta(meta)
	if solIdx < 0 {
		return 0
	}

	tokenDelta := tokenDeltaForMint(meta, targetMint(c))
	if tokenDelta == 0 {
		return 0
	}

	return math.Abs(solDelta) / math.Abs(tokenDelta)
}

func targetMint(c models.TradeCandidate) string {
	if c.OutputMint != "" && c.OutputMint != models.WSOLMint {
		return c.OutputMint
	}
	return c.InputMint
}

func largestSOLDelta(meta models.TxMeta) (int, float64) {
	best := -1
	var bestDelta float64
	n := len(meta.PreBalances)
	if len(meta.PostBalances) < n {
		n = len(meta.PostBalances)
	}
	for i := 0; i < n; i++ {
		delta := float64(meta.PostBalances[i] - meta.PreBalances[i])
		if math.Abs(delta) > lamportDeltaThreshold && math.Abs(delta) > math.Abs(bestDelta) {
			best = i
			bestDelta = delta
		}
	}
	return best, bestDelta
}

func tokenDeltaForMint(meta models.TxMeta, mint string) float64 {
	pre := tokenAmountForMint(meta.PreTokenBalances, mint)
	post := tokenAmountForMint(meta.PostTokenBalances, mint)
	return post - pre
}

func tokenAmountForMint(balances []models.TokenBalance, mint string) float64 {
	for _, b := range balances {
		if b.Mint == mint {
			return parseAmount(b.Amount)
		}
	}
	return 0
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// resolvePoolFromMemeEvents implements §4.3 step 5's three progressively
// looser join strategies.
func resolvePoolFromMemeEvents(c models.TradeCandidate, memeEvents []models.MemeEvent) string {
	// (i) same signature and same instruction index.
	for _, e := range memeEvents {
		if e.Signature == c.Signature && e.InstructionIndex == c.InstructionIndex && e.BondingCurve != "" {
			return e.BondingCurve
		}
	}
	// (ii) same user and base/quote pair matches the trade's mint pair.
	for _, e := range memeEvents {
		if e.User == c.User && e.BondingCurve != "" && pairMatches(e, c) {
			return e.BondingCurve
		}
	}
	// (iii) same user, any pair.
	for _, e := range memeEvents {
		if e.User == c.User && e.BondingCurve != "" {
			return e.BondingCurve
		}
	}
	return ""
}

func pairMatches(e models.MemeEvent, c models.TradeCandidate) bool {
	pair := map[string]bool{e.BaseMint: true, e.QuoteMint: true}
	return pair[c.InputMint] && pair[c.OutputMint]
}

func borrowMintFromSibling(c models.TradeCandidate, siblings []models.TradeCandidate) string {
	for i := range siblings {
		o := &siblings[i]
		if o.Signature != c.Signature {
			continue
		}
		if o.OutputMint != "" && o.OutputMint != models.WSOLMint {
			return o.OutputMint
		}
		if o.InputMint != "" && o.InputMint != models.WSOLMint {
			return o.InputMint
		}
	}
	return ""
}

func slotString(slot uint64) string {
	return strconv.FormatUint(slot, 10)
}
