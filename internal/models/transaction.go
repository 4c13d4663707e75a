// Package models defines the data types shared across the ingestion and
// API pipeline: transaction records, trade candidates, observations, and
// the swap request/response surface.
package models

// TxVersion is the transaction message version tag.
type TxVersion int

const (
	TxVersionLegacy TxVersion = iota
	TxVersionV0
)

// Commitment is the chain durability tier requested from a provider.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// WSOLMint is the hard-coded wrapped-SOL mint used as the universal quote token.
const WSOLMint = "So11111111111111111111111111111111111111112"

// CompiledInstruction is a single instruction referencing accounts by index
// into the enclosing message's account-key list.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// AddressTableLookup references a v0 address-lookup table.
type AddressTableLookup struct {
	AccountKey      string
	WritableIndexes []int
	ReadonlyIndexes []int
}

// TxMessage is the decoded transaction message.
type TxMessage struct {
	Version             TxVersion
	AccountKeys          []string
	Instructions         []CompiledInstruction
	AddressTableLookups []AddressTableLookup
}

// TokenBalance is a per-account, per-mint SPL token balance snapshot.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Amount       string // raw integer, decimal string
	Owner        string
}

// TxMeta carries the pre/post execution state attached to a transaction.
type TxMeta struct {
	PreBalances       []int64 // lamports, keyed by account index
	PostBalances      []int64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	InnerInstructions [][]CompiledInstruction // keyed by outer instruction index
	LogMessages       []string
	Err               bool
}

// TransactionRecord is the unit handed from the Transaction Source to the
// Trade Extractor.
type TransactionRecord struct {
	Signature    string // base58-printable
	Slot         uint64
	Message      TxMessage
	Meta         TxMeta
	BlockTimeSec *int64 // seconds since epoch, optional
	ConnectionID string // discards records from a superseded subscription
}
