// Package evm verifies payment proofs against transaction receipts reported
// by an EVM node.
package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/payload-protocol/paygate"
)

// nodeClient is the subset of ethclient.Client the verifier needs.
type nodeClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

// ReceiptInspector examines a fetched receipt after the base checks pass.
// It is the extension point for decoding contract event logs to confirm the
// exact order id and amount were paid.
type ReceiptInspector interface {
	Inspect(ctx context.Context, receipt *types.Receipt) error
}

// Verifier implements paygate.ReceiptVerifier over an EVM JSON-RPC node.
//
// Verification is deliberately weak: any successful transaction whose
// recipient is the configured payment address is accepted, regardless of the
// amount paid or the order id. Install an Inspector to harden that.
type Verifier struct {
	node nodeClient

	// Inspector, when set, is called with the fetched receipt after status
	// and recipient have been checked. An error from it fails verification.
	Inspector ReceiptInspector
}

// NewVerifier dials the node at rpcURL. The underlying client pools
// connections and is safe for concurrent use for the process lifetime.
func NewVerifier(rpcURL string) (*Verifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain node: %w", err)
	}
	return &Verifier{node: client}, nil
}

// Verify fetches the receipt for txRef and checks that the transaction
// succeeded and paid expectedRecipient. Address comparison is
// case-insensitive. A missing receipt is a verification failure, not a
// condition to poll on; the caller retries after the transaction confirms.
func (v *Verifier) Verify(ctx context.Context, txRef, expectedRecipient string) (*paygate.VerifiedReceipt, error) {
	hash, err := parseTxHash(txRef)
	if err != nil {
		return nil, paygate.NewVerificationError(paygate.CodeTxNotFound, "malformed transaction hash", err)
	}

	receipt, err := v.node.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, paygate.NewVerificationError(paygate.CodeTxNotFound, "transaction not found or not yet mined", err)
		}
		return nil, paygate.NewVerificationError(paygate.CodeVerifierUnavailable, "receipt query failed", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, paygate.NewVerificationError(paygate.CodeTxReverted, "transaction reverted", nil)
	}

	// The receipt does not carry the recipient; it comes from the
	// transaction itself.
	tx, _, err := v.node.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, paygate.NewVerificationError(paygate.CodeTxNotFound, "transaction not found", err)
		}
		return nil, paygate.NewVerificationError(paygate.CodeVerifierUnavailable, "transaction query failed", err)
	}

	to := tx.To()
	if to == nil || *to != common.HexToAddress(expectedRecipient) {
		return nil, paygate.NewVerificationError(paygate.CodeWrongRecipient, "transaction recipient does not match the payment address", nil)
	}

	if v.Inspector != nil {
		if err := v.Inspector.Inspect(ctx, receipt); err != nil {
			var verr *paygate.VerificationError
			if errors.As(err, &verr) {
				return nil, err
			}
			return nil, paygate.NewVerificationError(paygate.CodeWrongRecipient, "payment receipt rejected", err)
		}
	}

	vr := &paygate.VerifiedReceipt{
		TxHash:    hash.Hex(),
		Recipient: to.Hex(),
	}
	if receipt.BlockNumber != nil {
		vr.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return vr, nil
}

// parseTxHash validates and decodes a 0x-prefixed 32-byte transaction hash.
func parseTxHash(txRef string) (common.Hash, error) {
	s := strings.TrimSpace(txRef)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Hash{}, fmt.Errorf("missing 0x prefix")
	}

	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(raw))
	}

	return common.BytesToHash(raw), nil
}
