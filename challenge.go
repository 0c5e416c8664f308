package paygate

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/crypto"
)

// OrderID derives the on-chain correlation token for an identifier: the
// keccak256 digest of the identifier bytes, hex-encoded with a 0x prefix.
// It is a pure function, so repeated unpaid requests for the same resource
// always receive the same order id.
func OrderID(identifier string) string {
	return crypto.Keccak256Hash([]byte(identifier)).Hex()
}

// BuildChallenge constructs the payment challenge for an entry. The amount is
// the entry's price; chain id, recipient and currency come from the gateway
// configuration.
func BuildChallenge(cfg Config, entry *Entry) (PaymentChallenge, error) {
	if entry.Price < 0 || math.IsNaN(entry.Price) || math.IsInf(entry.Price, 0) {
		return PaymentChallenge{}, fmt.Errorf("%w: price %v for %q", ErrInvalidEntryState, entry.Price, entry.Identifier)
	}

	return PaymentChallenge{
		ChainID:         cfg.ChainID,
		ContractAddress: cfg.ContractAddress,
		Amount:          entry.Price,
		Currency:        cfg.Currency,
		OrderID:         OrderID(entry.Identifier),
	}, nil
}
