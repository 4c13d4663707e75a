// Package builder implements the Builder Registry (§4.5): it maps a DEX
// program identifier to a protocol-specific swap-instruction builder and a
// market tag, and is the single source of truth for the validator's
// whitelist.
package builder

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcsign/dexfeed/internal/apperr"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gagliardetto/solana-go"
)

// Builder assembles the protocol-specific instructions for a swap. Per
// spec.md §4.5, pool-state reads, derived addresses, and reserve lookups
// are a builder's own concern and are deliberately out of scope here.
type Builder interface {
	// Market returns the market tag this builder identifies itself with
	// (e.g. "amm-v1", "bonding-v1").
	Market() string

	// Build constructs the instructions for params against programID.
	// signer is params.Signer already parsed into a public key by
	// Registry.Build.
	Build(ctx context.Context, programID solana.PublicKey, signer solana.PublicKey, params models.BuildParams) ([]solana.Instruction, error)
}

// Factory constructs a Builder bound to one program id.
type Factory func(programID solana.PublicKey) Builder

// Registry maps program identifiers to builders, modeled directly on the
// teacher's provider.ProviderRegistry: sync.RWMutex-guarded maps with a
// factory-registration pattern, generalized from provider-type keys to
// program-id keys.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder // programId (base58) -> bound builder
	markets  map[string]string  // programId -> market tag
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
		markets:  make(map[string]string),
	}
}

// Register binds a builder produced by factory to programID. Registering
// the same program id twice replaces the previous binding.
func (r *Registry) Register(programID solana.PublicKey, factory Factory) error {
	if factory == nil {
		return apperr.NewNonRetryable(apperr.CodeValidation, "builder factory cannot be nil", nil)
	}
	b := factory(programID)
	if b == nil {
		return apperr.NewNonRetryable(apperr.CodeValidation, "builder factory returned nil builder", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := programID.String()
	r.builders[key] = b
	r.markets[key] = b.Market()
	return nil
}

// HasBuilder reports whether programID has a registered builder.
func (r *Registry) HasBuilder(programID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[programID]
	return ok
}

// GetMarketForProgramId returns the market tag registered for programID, if any.
func (r *Registry) GetMarketForProgramId(programID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[programID]
	return m, ok
}

// SupportedProgramIds returns every registered program id. This is the
// whitelist the Trade Validator (§4.3 step 7) and Trade Extractor consult;
// registering a builder immediately changes which trades
// are admitted upstream.
func (r *Registry) SupportedProgramIds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.builders))
	for id := range r.builders {
		ids = append(ids, id)
	}
	return ids
}

// Whitelist returns a membership predicate suitable for passing to the
// extractor and validator.
func (r *Registry) Whitelist() func(programID string) bool {
	return r.HasBuilder
}

// Build dispatches to the builder registered for programID and returns the
// raw instructions it assembles. Compiling those instructions into a
// signer-payer v0 transaction against a recent blockhash is the Quote/Swap
// API's job (§4.6 "Finalization"), since that step needs the RPC Client.
func (r *Registry) Build(ctx context.Context, programID string, params models.BuildParams) ([]solana.Instruction, error) {
	r.mu.RLock()
	b, ok := r.builders[programID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NewNonRetryable(apperr.CodeUnsupportedProtocol,
			fmt.Sprintf("no builder registered for program %s", programID), nil)
	}

	pid, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, apperr.NewNonRetryable(apperr.CodeValidation, "malformed program id", err)
	}
	signer, err := solana.PublicKeyFromBase58(params.Signer)
	if err != nil {
		return nil, apperr.NewNonRetryable(apperr.CodeValidation, "malformed signer", err)
	}

	instructions, err := b.Build(ctx, pid, signer, params)
	if err != nil {
		return nil, apperr.NewNonRetryable(apperr.CodeBuilderFailure, "builder failed to assemble instructions", err)
	}
	if len(instructions) == 0 {
		return nil, apperr.NewNonRetryable(apperr.CodeBuilderFailure, "builder produced no instructions", nil)
	}

	return instructions, nil
}
