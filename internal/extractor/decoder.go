package extractor

import (
	"github.com/arcsign/dexfeed/internal/models"
)

// Decoder turns a transaction's instructions and log messages into trade
// candidates and meme events. Per spec.md §4.2, the extractor treats
// classification of instruction -> protocol as a black box delegated to a
// decoding library; Decoder is that contract. A real deployment swaps in a
// library that understands each registered protocol's actual instruction
// and account layout (out of scope here, per spec.md §1's non-goals).
//
// DefaultDecoder below is the minimal reference implementation that ships
// with this package: it recognizes a fixed, documented instruction-data and
// log-marker layout so the rest of the pipeline (validator, price index,
// API) can be built and tested end-to-end without a real per-protocol
// parser.
type Decoder interface {
	// Decode inspects one transaction's instructions (outer and inner) and
	// log messages, recognizing those tagged with a watched program id.
	Decode(record *models.TransactionRecord, watched func(programID string) bool) (trades []models.TradeCandidate, memeEvents []models.MemeEvent)
}

// DefaultDecoder implements Decoder against a fixed reference wire format:
//
// Instruction data: byte 0 selects TradeBuy (0) or TradeSell (1); bytes
// 1-8 and 9-16 are the little-endian raw input/output amounts.
// Instruction accounts, by index: 0 = user (signer), 1 = pool, 2 = input
// mint, 3 = output mint.
//
// Meme events are recognized from log lines of the form:
//
//	Program log: dexfeed:meme user=<addr> base=<mint> quote=<mint> bondingCurve=<addr>
type DefaultDecoder struct{}

func (DefaultDecoder) Decode(record *models.TransactionRecord, watched func(string) bool) ([]models.TradeCandidate, []models.MemeEvent) {
	var trades []models.TradeCandidate

	decodeOne := func(ix models.CompiledInstruction, idx int) {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(record.Message.AccountKeys) {
			return
		}
		programID := record.Message.AccountKeys[ix.ProgramIDIndex]
		if !watched(programID) {
			return
		}
		trade, ok := decodeTradeInstruction(record, ix, idx, programID)
		if ok {
			trades = append(trades, trade)
		}
	}

	for idx, ix := range record.Message.Instructions {
		decodeOne(ix, idx)
	}
	for outerIdx, inner := range record.Meta.InnerInstructions {
		for _, ix := range inner {
			decodeOne(ix, outerIdx)
		}
	}

	memeEvents := decodeMemeEvents(record)

	return trades, memeEvents
}

func decodeTradeInstruction(record *models.TransactionRecord, ix models.CompiledInstruction, idx int, programID string) (models.TradeCandidate, bool) {
	if len(ix.Data) < 17 || len(ix.Accounts) < 4 {
		return models.TradeCandidate{}, false
	}

	tradeType := models.TradeBuy
	if ix.Data[0] == 1 {
		tradeType = models.TradeSell
	}
	inputAmount := leUint64(ix.Data[1:9])
	outputAmount := leUint64(ix.Data[9:17])

	accountKey := func(i int) string {
		idx := ix.Accounts[i]
		if idx < 0 || idx >= len(record.Message.AccountKeys) {
			return ""
		}
		return record.Message.AccountKeys[idx]
	}

	return models.TradeCandidate{
		Type:             tradeType,
		InputMint:        accountKey(2),
		OutputMint:       accountKey(3),
		InputAmountRaw:   inputAmount,
		OutputAmountRaw:  outputAmount,
		ProgramID:        programID,
		Pool:             accountKey(1),
		Signature:        record.Signature,
		Slot:             record.Slot,
		User:             accountKey(0),
		InstructionIndex: idx,
	}, true
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
