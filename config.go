package x402

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimeoutConfig holds timeout configuration for payment operations.
// Every external call (oracle verification, ledger finalization, balance
// queries) is bounded by one of these.
type TimeoutConfig struct {
	// VerifyTimeout is the maximum time to wait for payment verification.
	VerifyTimeout time.Duration

	// SettleTimeout is the maximum time to wait for payment settlement.
	SettleTimeout time.Duration

	// RequestTimeout is the overall timeout for HTTP requests.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides sensible defaults for payment operations.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// WithVerifyTimeout returns a new TimeoutConfig with updated verify timeout.
func (tc TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	tc.VerifyTimeout = d
	return tc
}

// WithSettleTimeout returns a new TimeoutConfig with updated settle timeout.
func (tc TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	tc.SettleTimeout = d
	return tc
}

// WithRequestTimeout returns a new TimeoutConfig with updated request timeout.
func (tc TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	tc.RequestTimeout = d
	return tc
}

// Validate ensures timeout values are reasonable.
func (tc TimeoutConfig) Validate() error {
	if tc.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", tc.VerifyTimeout)
	}
	if tc.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", tc.SettleTimeout)
	}
	if tc.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	}
	if tc.SettleTimeout < tc.VerifyTimeout {
		return fmt.Errorf("settle timeout (%v) should be >= verify timeout (%v)",
			tc.SettleTimeout, tc.VerifyTimeout)
	}
	return nil
}

// GateConfig is the immutable configuration for a server payment gate:
// what is being sold, for how much, on which network, paid to whom. It is
// passed in at construction; there is no ambient package-level state.
type GateConfig struct {
	// Network is the blockchain network identifier (e.g., "solana", "base").
	Network string `validate:"required"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string `validate:"required"`

	// AssetDecimals is the token's decimal precision, used when Price is
	// given as a human-readable amount.
	AssetDecimals int `validate:"gte=0,lte=38"`

	// Amount is the price in atomic units. Exactly one of Amount and Price
	// must be set.
	Amount string

	// Price is the human-readable price (e.g., "0.01" for one cent of a
	// six-decimal stablecoin). Converted using AssetDecimals.
	Price string

	// PayTo is the treasury address payments are sent to.
	PayTo string `validate:"required"`

	// Scheme is the payment scheme. Defaults to "exact".
	Scheme string

	// Description is a human-readable description of what is being bought.
	Description string

	// MimeType is the content type of the protected resource.
	// Defaults to "application/json".
	MimeType string

	// MaxTimeoutSeconds is the proof freshness window. Defaults to 300.
	MaxTimeoutSeconds int `validate:"gte=0"`

	// Discoverable marks the resource for payment-directory discovery.
	Discoverable bool
}

var validate = validator.New()

// Validate checks structural constraints on the gate configuration.
// Semantic checks (address formats, positive amounts) happen in
// NewRequirementsBuilder.
func (c GateConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Amount == "" && c.Price == "" {
		return fmt.Errorf("%w: either Amount or Price must be set", ErrInvalidConfig)
	}
	if c.Amount != "" && c.Price != "" {
		return fmt.Errorf("%w: Amount and Price are mutually exclusive", ErrInvalidConfig)
	}
	return nil
}
