// Package extractor implements the Trade Extractor (§4.2): it parses a raw
// transaction into zero or more normalized trade candidates and meme
// events, wrapped in a fault barrier so a single malformed record never
// propagates an error into the ingestion pipeline (mirrors the teacher's
// per-endpoint error isolation in rpc.HTTPRPCClient.Call).
package extractor

import (
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/rs/zerolog"
)

// Result is the extractor's output for one transaction record.
type Result struct {
	Trades     []models.TradeCandidate
	MemeEvents []models.MemeEvent
	TotalTrades int
}

// Extractor decodes transactions using a pluggable Decoder.
type Extractor struct {
	decoder Decoder
	log     zerolog.Logger
}

// New constructs an Extractor. A nil decoder uses DefaultDecoder.
func New(decoder Decoder, log zerolog.Logger) *Extractor {
	if decoder == nil {
		decoder = DefaultDecoder{}
	}
	return &Extractor{decoder: decoder, log: log}
}

// Extract decodes record, recognizing instructions whose program id passes
// watched. Version is resolved by resolveVersion: presence of address-table
// lookups or a message already tagged v0 implies v0, and a message with
// neither is legacy. Any panic from the underlying decoder is
// recovered and surfaces as an empty result, never propagated.
func (e *Extractor) Extract(record *models.TransactionRecord, watched func(programID string) bool) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("signature", record.Signature).Msg("extractor recovered from decoder panic")
			result = Result{}
		}
	}()

	resolveVersion(record)

	trades, memeEvents := e.decoder.Decode(record, watched)
	return Result{
		Trades:      trades,
		MemeEvents:  memeEvents,
		TotalTrades: len(trades),
	}
}

// resolveVersion normalizes record.Message.Version: any AddressTableLookups
// set it to V0; otherwise a version already set to V0 is left alone and
// anything else becomes legacy.
func resolveVersion(record *models.TransactionRecord) {
	if len(record.Message.AddressTableLookups) > 0 {
		record.Message.Version = models.TxVersionV0
		return
	}
	if record.Message.Version != models.TxVersionV0 {
		record.Message.Version = models.TxVersionLegacy
	}
}
