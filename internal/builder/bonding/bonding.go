// Package bonding implements a bonding-curve (launchpad-style)
// swap-instruction builder (market tag "bonding-v1"), the natural home for
// the bonding-curve pool id the Trade Validator's meme-event join (§4.3
// step 5) resolves.
package bonding

import (
	"context"
	"encoding/binary"

	"github.com/arcsign/dexfeed/internal/builder"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gagliardetto/solana-go"
)

// Market is this builder's registry tag.
const Market = "bonding-v1"

const (
	buyInstructionTag  = 0x10
	sellInstructionTag = 0x11
)

// Builder assembles a single buy/sell instruction against a bonding-curve
// account. Curve-state reads (virtual reserves, graduation thresholds) are
// out of scope per spec.md §1.
type Builder struct {
	programID solana.PublicKey
}

// New constructs a bonding-curve Builder bound to programID.
func New(programID solana.PublicKey) builder.Builder {
	return &Builder{programID: programID}
}

func (b *Builder) Market() string { return Market }

func (b *Builder) Build(_ context.Context, programID, signer solana.PublicKey, params models.BuildParams) ([]solana.Instruction, error) {
	bondingCurve, err := solana.PublicKeyFromBase58(params.Observation.Pool)
	if err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(params.Mint)
	if err != nil {
		return nil, err
	}

	tag := byte(buyInstructionTag)
	amount := params.InputAmount
	if params.Type == models.SideSell {
		tag = sellInstructionTag
		amount = params.OutputAmount
	}

	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:9], amount)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(signer, false, true),
		solana.NewAccountMeta(bondingCurve, true, false),
		solana.NewAccountMeta(mint, false, false),
	}

	ix := solana.NewInstruction(programID, accounts, data)
	return []solana.Instruction{ix}, nil
}
