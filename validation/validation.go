// Package validation checks the structural validity of payment requirements
// and payment payloads before they enter the protocol core.
package validation

import (
	"fmt"
	"math/big"

	x402 "github.com/zeroc-labs/x402-go"
)

// ValidatePaymentRequirement checks that a requirement received from a
// server (or about to be served) is internally consistent: known scheme,
// valid network, well-formed addresses, and a positive decimal amount.
func ValidatePaymentRequirement(req *x402.PaymentRequirement) error {
	if req == nil {
		return fmt.Errorf("%w: nil requirement", x402.ErrInvalidRequirements)
	}

	if req.Scheme != "exact" {
		return fmt.Errorf("%w: scheme %q", x402.ErrUnsupportedScheme, req.Scheme)
	}

	if _, err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("%w: %v", x402.ErrInvalidRequirements, err)
	}

	if err := x402.ValidateTokenAddress(req.Network, req.Asset); err != nil {
		return fmt.Errorf("%w: %v", x402.ErrInvalidRequirements, err)
	}

	if err := x402.ValidateAddress(req.Network, req.PayTo); err != nil {
		return fmt.Errorf("%w: payTo: %v", x402.ErrInvalidRequirements, err)
	}

	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return err
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("%w: negative timeout %d", x402.ErrInvalidRequirements, req.MaxTimeoutSeconds)
	}

	return nil
}

// ValidateAmount checks that an atomic amount string is a positive decimal
// integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("%w: empty amount", x402.ErrInvalidAmount)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("%w: %q is not a decimal integer", x402.ErrInvalidAmount, amount)
	}
	if value.Sign() <= 0 {
		return fmt.Errorf("%w: %q is not positive", x402.ErrInvalidAmount, amount)
	}
	return nil
}

// ValidatePaymentPayload checks the envelope of a decoded payment proof:
// protocol version, scheme, network, and the presence of claim metadata.
// Signature authenticity is the oracle's job, not this package's.
func ValidatePaymentPayload(payment *x402.PaymentPayload) error {
	if payment == nil {
		return fmt.Errorf("%w: nil payment", x402.ErrMalformedHeader)
	}

	if payment.X402Version != 1 {
		return x402.ErrUnsupportedVersion
	}

	if payment.Scheme != "exact" {
		return fmt.Errorf("%w: scheme %q", x402.ErrUnsupportedScheme, payment.Scheme)
	}

	if _, err := x402.ValidateNetwork(payment.Network); err != nil {
		return err
	}

	claim, err := x402.ClaimFrom(payment)
	if err != nil {
		return err
	}
	if claim.Payer == "" || claim.PayTo == "" {
		return fmt.Errorf("%w: claim missing payer or payTo", x402.ErrMissingClaim)
	}
	if err := ValidateAmount(claim.Amount); err != nil {
		return err
	}

	return nil
}
