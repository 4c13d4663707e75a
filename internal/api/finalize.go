package api

import (
	"context"
	"encoding/base64"

	"github.com/arcsign/dexfeed/internal/apperr"
	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// finalize acquires a recent blockhash, compiles a v0 message paying the
// signer, serializes it, and applies the chosen text encoding (§4.6
// "Finalization"). base58 is served by mr-tron/base58 and base64 by the
// standard library, as the two text encodings the request can request.
func (s *Server) finalize(ctx context.Context, signer string, instructions []solana.Instruction, encoding models.TxEncoding) (string, error) {
	payer, err := solana.PublicKeyFromBase58(signer)
	if err != nil {
		return "", apperr.NewNonRetryable(apperr.CodeValidation, "malformed signer public key", err)
	}

	blockhashCtx, cancel := withTimeout(ctx)
	defer cancel()
	blockhashStr, err := s.rpcClient.GetLatestBlockhash(blockhashCtx)
	if err != nil {
		return "", apperr.NewRetryable(apperr.CodeRPCUnavailable, "failed to acquire recent blockhash", err)
	}
	blockhash, err := solana.HashFromBase58(blockhashStr)
	if err != nil {
		return "", apperr.NewNonRetryable(apperr.CodeEncodingFailure, "malformed blockhash from rpc", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return "", apperr.NewNonRetryable(apperr.CodeBuilderFailure, "failed to compile transaction", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", apperr.NewNonRetryable(apperr.CodeEncodingFailure, "failed to serialize transaction", err)
	}

	if encoding == models.EncodingBase58 {
		return base58.Encode(raw), nil
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
