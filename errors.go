package paygate

import (
	"errors"
	"fmt"
)

// Verification failure codes.
const (
	// CodeTxNotFound: the referenced transaction is unknown or not yet mined.
	CodeTxNotFound = "TX_NOT_FOUND"

	// CodeTxReverted: the transaction was mined but did not succeed.
	CodeTxReverted = "TX_REVERTED"

	// CodeWrongRecipient: the transaction paid an address other than the
	// configured payment contract.
	CodeWrongRecipient = "WRONG_RECIPIENT"

	// CodeVerifierUnavailable: the chain node could not be queried. This is
	// an infrastructure fault, not a payment failure.
	CodeVerifierUnavailable = "VERIFIER_UNAVAILABLE"
)

// ErrInvalidEntryState reports a registry entry whose price is corrupt
// (negative or non-finite). The registry enforces non-negativity, so seeing
// this means upstream data corruption.
var ErrInvalidEntryState = errors.New("entry has an invalid price")

// VerificationError represents a failed payment-proof verification.
type VerificationError struct {
	Code    string
	Message string
	Cause   error
}

func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// NewVerificationError creates a new VerificationError.
func NewVerificationError(code, message string, cause error) *VerificationError {
	return &VerificationError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// VerificationCode extracts the failure code from an error, or "" when the
// error is not a VerificationError.
func VerificationCode(err error) string {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	return ""
}
