package extractor

import (
	"strings"

	"github.com/arcsign/dexfeed/internal/models"
)

const memeLogPrefix = "Program log: dexfeed:meme "

// decodeMemeEvents scans a transaction's log messages for the reference
// meme-event marker (see DefaultDecoder's doc comment) and gives each one
// an instruction index of one less than the number of "Program invoke"
// lines seen before it, nested invokes included, so the index only
// approximates the emitting instruction. Each event also carries its raw
// signature/user/mint fields, which the Trade Validator's looser join
// strategies (§4.3 step 5, strategies ii and iii) match on.
func decodeMemeEvents(record *models.TransactionRecord) []models.MemeEvent {
	var events []models.MemeEvent
	instructionIndex := 0
	for _, line := range record.Meta.LogMessages {
		if strings.HasPrefix(line, "Program invoke") {
			instructionIndex++
			continue
		}
		if !strings.HasPrefix(line, memeLogPrefix) {
			continue
		}
		fields := parseKV(strings.TrimPrefix(line, memeLogPrefix))
		events = append(events, models.MemeEvent{
			Signature:        record.Signature,
			InstructionIndex: instructionIndex - 1,
			User:             fields["user"],
			BaseMint:         fields["base"],
			QuoteMint:        fields["quote"],
			BondingCurve:     fields["bondingCurve"],
		})
	}
	return events
}

// parseKV parses a space-separated "key=value" sequence.
func parseKV(s string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
