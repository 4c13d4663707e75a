package validator

import (
	"testing"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whitelistOf(programs ...string) func(string) bool {
	set := make(map[string]bool, len(programs))
	for _, p := range programs {
		set[p] = true
	}
	return func(p string) bool { return set[p] }
}

func buyTrade() models.TradeCandidate {
	return models.TradeCandidate{
		Type:            models.TradeBuy,
		InputMint:       models.WSOLMint,
		OutputMint:      "MintM",
		InputAmountRaw:  1_000_000,
		OutputAmountRaw: 500,
		ProgramID:       "ProgramP",
		Pool:            "Pool1",
		Signature:       "sig1",
		Slot:            42,
		User:            "User1",
	}
}

func TestValidate_AdmitsWellFormedBuy(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	obs, rej := v.Validate([]models.TradeCandidate{buyTrade()}, nil, models.TxMeta{})

	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, "MintM", obs[0].Mint)
	assert.Equal(t, "Pool1", obs[0].Pool)
	assert.Equal(t, "42", obs[0].Slot)
	assert.InDelta(t, 2000.0, obs[0].AvgPrice, 0.001)
}

func TestValidate_RejectsSolSolNoise(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.OutputMint = models.WSOLMint

	obs, rej := v.Validate([]models.TradeCandidate{c}, nil, models.TxMeta{})

	assert.Empty(t, obs)
	require.Len(t, rej, 1)
	assert.Equal(t, "sol-sol noise", rej[0].Reason)
}

func TestValidate_RejectsUnwhitelistedProgram(t *testing.T) {
	v := New(whitelistOf("OtherProgram"), zerolog.Nop())
	obs, rej := v.Validate([]models.TradeCandidate{buyTrade()}, nil, models.TxMeta{})

	assert.Empty(t, obs)
	require.Len(t, rej, 1)
	assert.Equal(t, "programId not whitelisted", rej[0].Reason)
}

func TestValidate_RejectsMissingSlot(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.Slot = 0

	obs, rej := v.Validate([]models.TradeCandidate{c}, nil, models.TxMeta{})

	assert.Empty(t, obs)
	require.Len(t, rej, 1)
	assert.Equal(t, "missing slot", rej[0].Reason)
}

func TestValidate_AmountRepair_BorrowsFromSibling(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	broken := buyTrade()
	broken.InputAmountRaw = 0
	broken.OutputAmountRaw = 0
	broken.Signature = "sig2"
	donor := buyTrade()
	donor.Signature = "sig2"

	obs, rej := v.Validate([]models.TradeCandidate{donor, broken}, nil, models.TxMeta{})

	require.Empty(t, rej)
	require.Len(t, obs, 2)
	assert.InDelta(t, obs[0].AvgPrice, obs[1].AvgPrice, 0.001)
}

func TestValidate_BalanceDeltaFallback(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.InputAmountRaw = 0
	c.OutputAmountRaw = 0

	meta := models.TxMeta{
		PreBalances:  []int64{10_000_000_000},
		PostBalances: []int64{9_000_000_000},
		PreTokenBalances: []models.TokenBalance{
			{Mint: "MintM", Amount: "100"},
		},
		PostTokenBalances: []models.TokenBalance{
			{Mint: "MintM", Amount: "600"},
		},
	}

	obs, rej := v.Validate([]models.TradeCandidate{c}, nil, meta)

	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.InDelta(t, 2_000_000.0, obs[0].AvgPrice, 0.001)
}

func TestValidate_PoolResolution_SameInstructionMatch(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.Pool = ""
	c.InstructionIndex = 3

	events := []models.MemeEvent{
		{Signature: "sig1", InstructionIndex: 3, BondingCurve: "BC1"},
	}

	obs, rej := v.Validate([]models.TradeCandidate{c}, events, models.TxMeta{})

	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, "BC1", obs[0].Pool)
}

func TestValidate_PoolResolution_SameUserAnyPair(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.Pool = ""
	c.InstructionIndex = 9

	events := []models.MemeEvent{
		{Signature: "other-sig", InstructionIndex: 0, User: "User1", BondingCurve: "BC2", BaseMint: "Unrelated", QuoteMint: "AlsoUnrelated"},
	}

	obs, rej := v.Validate([]models.TradeCandidate{c}, events, models.TxMeta{})

	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, "BC2", obs[0].Pool)
}

func TestValidate_RejectsMissingPool(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.Pool = ""

	obs, rej := v.Validate([]models.TradeCandidate{c}, nil, models.TxMeta{})

	assert.Empty(t, obs)
	require.Len(t, rej, 1)
	assert.Equal(t, "missing pool", rej[0].Reason)
}

func TestValidate_MintResolution_FallsBackToInputMint(t *testing.T) {
	v := New(whitelistOf("ProgramP"), zerolog.Nop())
	c := buyTrade()
	c.Type = models.TradeSell
	c.InputMint = "MintM"
	c.OutputMint = models.WSOLMint
	c.InputAmountRaw = 500
	c.OutputAmountRaw = 1_000_000

	obs, rej := v.Validate([]models.TradeCandidate{c}, nil, models.TxMeta{})

	require.Empty(t, rej)
	require.Len(t, obs, 1)
	assert.Equal(t, "MintM", obs[0].Mint)
}
