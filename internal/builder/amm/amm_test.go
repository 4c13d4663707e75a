package amm

import (
	"context"
	"testing"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_ProducesSingleInstruction(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	b := New(programID)

	params := models.BuildParams{
		Mint:         solana.NewWallet().PublicKey().String(),
		Type:         models.SideBuy,
		InputAmount:  1_000_000,
		OutputAmount: 500,
		SlippageBps:  1000,
		Observation:  models.Observation{Pool: solana.NewWallet().PublicKey().String()},
	}

	instructions, err := b.Build(context.Background(), programID, solana.NewWallet().PublicKey(), params)
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Equal(t, Market, b.Market())
}

func TestMinOutWithSlippage(t *testing.T) {
	assert.Equal(t, uint64(450), minOutWithSlippage(500, 1000))
	assert.Equal(t, uint64(500), minOutWithSlippage(500, 0))
	assert.Equal(t, uint64(0), minOutWithSlippage(500, 10001))
}

func TestBuild_RejectsMalformedPool(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	b := New(programID)

	params := models.BuildParams{
		Mint:        solana.NewWallet().PublicKey().String(),
		Observation: models.Observation{Pool: "bad"},
	}

	_, err := b.Build(context.Background(), programID, solana.NewWallet().PublicKey(), params)
	assert.Error(t, err)
}
