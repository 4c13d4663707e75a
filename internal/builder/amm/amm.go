// Package amm implements a constant-product AMM swap-instruction builder
// (market tag "amm-v1"), one of the two concrete builders registered with
// the Builder Registry (§4.5).
package amm

import (
	"context"
	"encoding/binary"

	"github.com/arcsign/dexfeed/internal/builder"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gagliardetto/solana-go"
)

// Market is this builder's registry tag.
const Market = "amm-v1"

// swapInstructionTag selects the swap opcode within the program's
// instruction-data layout; kept private since it is an implementation
// detail of this one builder, not part of the Builder contract.
const swapInstructionTag = 0x01

// Builder assembles a single swap instruction against a pool account. It
// emits no WSOL wrap/unwrap instructions for either trade side. Pool-state reads (reserves,
// derived vault addresses) are out of scope per spec.md §1 and are
// represented here by the Observation's pool field alone.
type Builder struct {
	programID solana.PublicKey
}

// New constructs an AMM Builder bound to programID.
func New(programID solana.PublicKey) builder.Builder {
	return &Builder{programID: programID}
}

func (b *Builder) Market() string { return Market }

func (b *Builder) Build(_ context.Context, programID, signer solana.PublicKey, params models.BuildParams) ([]solana.Instruction, error) {
	pool, err := solana.PublicKeyFromBase58(params.Observation.Pool)
	if err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(params.Mint)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 18)
	data[0] = swapInstructionTag
	if params.Type == models.SideSell {
		data[1] = 1
	}
	binary.LittleEndian.PutUint64(data[2:10], params.InputAmount)
	binary.LittleEndian.PutUint64(data[10:18], minOutWithSlippage(params.OutputAmount, params.SlippageBps))

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(signer, false, true),
		solana.NewAccountMeta(pool, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.MustPublicKeyFromBase58(models.WSOLMint), false, false),
	}

	ix := solana.NewInstruction(programID, accounts, data)
	return []solana.Instruction{ix}, nil
}

// minOutWithSlippage derates expectedOut by slippageBps to produce the
// minimum acceptable output amount — the AMM program's own safety check.
func minOutWithSlippage(expectedOut uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return expectedOut
	}
	reduced := (uint64(slippageBps) * expectedOut) / 10000
	if reduced >= expectedOut {
		return 0
	}
	return expectedOut - reduced
}
