package models

// TradeType classifies a decoded swap leg relative to the WSOL quote token.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"  // quote -> base
	TradeSell TradeType = "SELL" // base -> quote
)

// TradeCandidate is produced by the Trade Extractor and consumed by the
// Trade Validator. It is ephemeral: it exists only on the pipeline stack
// between extraction and validation.
type TradeCandidate struct {
	Type             TradeType
	InputMint        string
	OutputMint       string
	InputAmountRaw   uint64
	OutputAmountRaw  uint64
	ProgramID        string
	Pool             string // optional on-curve-account address
	Signature        string
	Slot             uint64
	User             string // signer of the originating instruction
	InstructionIndex int    // index of the originating instruction within the transaction
}

// MemeEvent is an auxiliary bonding-curve creation/update record decoded
// alongside a trade; it carries the bonding-curve account when the trade
// candidate itself lacks a pool.
type MemeEvent struct {
	Signature        string
	InstructionIndex int
	User             string
	BaseMint         string
	QuoteMint        string
	BondingCurve     string
}
