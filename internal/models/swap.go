package models

// SwapSide mirrors TradeType for API request/response shapes.
type SwapSide string

const (
	SideBuy  SwapSide = "buy"
	SideSell SwapSide = "sell"
)

// TxEncoding is the serialized-transaction text encoding requested by a caller.
type TxEncoding string

const (
	EncodingBase64 TxEncoding = "base64"
	EncodingBase58 TxEncoding = "base58"
)

// QuoteOverride lets a swap request supply its own observation instead of
// reading the Price Index.
type QuoteOverride struct {
	Mint      string  `json:"mint"`
	Pool      string  `json:"pool"`
	AvgPrice  float64 `json:"avgPrice"`
	ProgramID string  `json:"programId"`
	Slot      string  `json:"slot"`
}

// SwapRequest is the Quote/Swap API's POST /api/swap/:mint body.
type SwapRequest struct {
	Signer      string         `json:"signer"`
	Type        SwapSide       `json:"type"`
	AmountIn    *float64       `json:"amountIn,omitempty"`
	AmountOut   *float64       `json:"amountOut,omitempty"`
	SlippageBps int            `json:"slippageBps"`
	Quote       *QuoteOverride `json:"quote,omitempty"`
	Encoding    TxEncoding     `json:"encoding,omitempty"`
}

// SwapResult is the Quote/Swap API's response for a successful build.
type SwapResult struct {
	Success bool   `json:"success"`
	Tx      string `json:"tx"`
}

// BuildParams is the uniform parameter set the Builder Registry consumes,
// regardless of protocol (§4.5).
type BuildParams struct {
	Mint         string
	Signer       string
	Type         SwapSide
	InputAmount  uint64 // raw units
	OutputAmount uint64 // raw units
	SlippageBps  int
	Observation  Observation
}
