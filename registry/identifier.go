package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const identifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// IdentifierLength is the length of generated public path identifiers.
const IdentifierLength = 6

// NewIdentifier draws a random identifier from the alphanumeric alphabet.
// Collisions are possible at this length; the caller retries on ErrConflict.
func NewIdentifier() (string, error) {
	max := big.NewInt(int64(len(identifierAlphabet)))
	buf := make([]byte, IdentifierLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to draw random identifier: %w", err)
		}
		buf[i] = identifierAlphabet[n.Int64()]
	}
	return string(buf), nil
}
