package models

// Observation is the value stored by the Price Index: the latest validated
// price for a non-WSOL mint.
type Observation struct {
	Mint        string  // non-WSOL mint, primary key
	Pool        string  // pool identifier
	AvgPrice    float64 // quote-per-base, finite and > 0
	ProgramID   string  // must be in the builder registry's whitelist
	Slot        string  // decimal string form of the source slot
	StoredAt    int64   // wall-clock ms
	LastAccess  int64   // wall-clock ms, updated on read
}

// Valid reports whether the observation satisfies the Price Index's
// per-entry invariants (§3 / §8 invariant 1).
func (o *Observation) Valid(whitelist func(programID string) bool) bool {
	if o == nil {
		return false
	}
	if o.AvgPrice <= 0 || !isFinite(o.AvgPrice) {
		return false
	}
	if o.Pool == "" || o.Mint == "" {
		return false
	}
	if o.ProgramID == "" || whitelist == nil || !whitelist(o.ProgramID) {
		return false
	}
	if o.Slot == "" {
		return false
	}
	return true
}

func isFinite(f float64) bool {
	return f == f && f-f == 0 // excludes NaN and +/-Inf
}
