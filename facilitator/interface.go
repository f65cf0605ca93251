// Package facilitator defines the ledger oracle abstraction: the external
// service that attests to payment proof authenticity and finalizes value
// transfer on chain. The protocol core depends only on this interface;
// concrete HTTP clients live in the http package and fakes in tests.
package facilitator

import (
	"context"

	x402 "github.com/zeroc-labs/x402-go"
)

// Oracle verifies and settles payment proofs against the underlying ledger.
//
// Verify is side-effect free and may be called any number of times for the
// same proof. Settle moves value and must therefore be guarded by the
// settlement ledger so it runs at most once per proof.
type Oracle interface {
	// Verify checks a payment proof's authenticity against the requirement
	// without settling it. A reachable oracle that judges the proof invalid
	// returns a VerifyResponse with IsValid false and a nil error; an error
	// return means the oracle could not be consulted at all.
	Verify(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*VerifyResponse, error)

	// Settle finalizes a verified payment on chain and returns the
	// settlement receipt.
	Settle(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error)

	// Supported returns the payment kinds this oracle can process.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// VerifyResponse is the oracle's judgment on a payment proof.
type VerifyResponse struct {
	// IsValid indicates whether the payment proof is valid.
	IsValid bool `json:"isValid"`

	// InvalidReason explains why the proof was rejected, when it was.
	InvalidReason string `json:"invalidReason,omitempty"`

	// Payer is the address the oracle recovered as the proof's signer.
	Payer string `json:"payer,omitempty"`
}

// SupportedKind describes one scheme/network pair an oracle supports.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists the payment kinds an oracle supports.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
