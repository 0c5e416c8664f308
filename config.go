package paygate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by Config.Validate.
const (
	// DefaultChainID is Arbitrum Sepolia.
	DefaultChainID = 421614

	DefaultCurrency         = "ETH"
	DefaultRequestTimeout   = 15 * time.Second
	DefaultMaxOutboundCalls = 64
)

// Config holds the gateway configuration. All external calls made on behalf
// of an inbound request share the same timeout; nothing is retried.
type Config struct {
	// RPCURL is the blockchain node endpoint used for receipt queries.
	RPCURL string

	// ContractAddress is the payment contract: the only address accepted as
	// the recipient of a payment transaction.
	ContractAddress string

	// ChainID is advertised in payment challenges. Defaults to
	// DefaultChainID.
	ChainID int64

	// Currency is the native-currency symbol advertised in payment
	// challenges. Defaults to DefaultCurrency.
	Currency string

	// RequestTimeout bounds registry lookup, receipt verification and the
	// upstream forward for a single inbound request.
	RequestTimeout time.Duration

	// MaxOutboundCalls caps concurrent upstream forwards. This is a
	// hardening measure beyond the wire protocol itself.
	MaxOutboundCalls int
}

// FromEnv loads the gateway configuration from the environment and validates
// it. Recognized variables: RPC_URL, CONTRACT_ADDRESS, CHAIN_ID, CURRENCY,
// REQUEST_TIMEOUT_SECONDS, MAX_OUTBOUND_CALLS.
func FromEnv() (Config, error) {
	cfg := Config{
		RPCURL:          strings.TrimSpace(os.Getenv("RPC_URL")),
		ContractAddress: strings.TrimSpace(os.Getenv("CONTRACT_ADDRESS")),
		Currency:        strings.TrimSpace(os.Getenv("CURRENCY")),
	}

	if raw := strings.TrimSpace(os.Getenv("CHAIN_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHAIN_ID %q: %w", raw, err)
		}
		cfg.ChainID = id
	}

	if raw := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT_SECONDS")); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS %q", raw)
		}
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}

	if raw := strings.TrimSpace(os.Getenv("MAX_OUTBOUND_CALLS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_OUTBOUND_CALLS %q", raw)
		}
		cfg.MaxOutboundCalls = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and fills in defaults. Missing required
// configuration is a startup error, never a per-request one.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}

	if c.ChainID == 0 {
		c.ChainID = DefaultChainID
	}

	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	if c.MaxOutboundCalls == 0 {
		c.MaxOutboundCalls = DefaultMaxOutboundCalls
	}

	return nil
}
