// Package paygate implements a payment-gated reverse proxy: operators
// register a hidden upstream behind a short public path with a price, and
// callers must present proof of an on-chain payment before the gateway
// forwards their request.
package paygate

import (
	"context"
	"time"
)

// Header names used by the payment protocol.
const (
	// PaymentTxHeader carries the caller's payment proof: the hash of the
	// on-chain transaction that paid for the resource.
	PaymentTxHeader = "X-Payment-Tx"

	// ServedByHeader marks responses that were relayed through the gateway.
	// The spelling is part of the wire format and must not change.
	ServedByHeader = "X-Proxy-Serverd-By"

	// ServedByValue is the fixed value of ServedByHeader.
	ServedByValue = "PayLoad-Protocol"
)

// Entry is a registry record describing a monetized endpoint. Entries are
// created by the registration workflow and read-only to the gateway. The
// target URL is never exposed to callers.
type Entry struct {
	// Identifier is the short public path segment mapping to this entry.
	Identifier string `json:"proxyPath"`

	// TargetURL is the absolute URL of the hidden upstream.
	TargetURL string `json:"-"`

	// Price is the amount required per request, in the chain's native
	// currency.
	Price float64 `json:"price"`

	// OwnerAddress is the normalized (lowercase) chain address of the
	// creator. Informational only; the gateway does not authorize against it.
	OwnerAddress string `json:"ownerAddress"`

	// Active controls visibility. Inactive entries behave exactly like
	// entries that never existed.
	Active bool `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
}

// PaymentChallenge is the paymentDetails object of a 402 response. It tells
// the caller how to pay for a resource. Challenges are pure functions of the
// entry and the gateway configuration; the gateway keeps no record of having
// issued one.
type PaymentChallenge struct {
	ChainID         int64   `json:"chainId"`
	ContractAddress string  `json:"contractAddress"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	OrderID         string  `json:"orderId"`
}

// PaymentRequiredResponse is the 402 body sent when a request carries no
// payment proof.
type PaymentRequiredResponse struct {
	Error          string           `json:"error"`
	Message        string           `json:"message"`
	PaymentDetails PaymentChallenge `json:"paymentDetails"`
}

// ErrorResponse is the body of every non-challenge error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// VerifiedReceipt is the outcome of a successful proof verification.
type VerifiedReceipt struct {
	// TxHash is the normalized hash of the verified transaction.
	TxHash string

	// Recipient is the address the transaction actually paid.
	Recipient string

	// BlockNumber is the block the transaction was mined in. Informational.
	BlockNumber uint64
}

// ReceiptVerifier validates a caller-supplied payment proof against chain
// state. Implementations must be safe for concurrent use and must not cache
// results: every call re-verifies from scratch.
//
// A verification failure is reported as a *VerificationError whose Code
// distinguishes missing, reverted and misdirected transactions from
// infrastructure faults. Stricter verifiers (event-log decoding, replay
// prevention) can be substituted without touching the gateway.
type ReceiptVerifier interface {
	Verify(ctx context.Context, txRef, expectedRecipient string) (*VerifiedReceipt, error)
}

// Registry is the typed accessor over the external proxy-link registry.
type Registry interface {
	// FindActive returns the active entry for identifier, or nil when the
	// identifier is unknown or deactivated. The two cases are deliberately
	// indistinguishable so callers cannot probe which identifiers ever
	// existed.
	FindActive(ctx context.Context, identifier string) (*Entry, error)
}
