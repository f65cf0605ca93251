package x402

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// RequirementsBuilder produces payment requirement descriptors from an
// immutable gate configuration. Building is deterministic except for the
// nonce and issued-at fields, which are fresh on every call so that a
// requirement issued for one request cannot be replayed against another.
type RequirementsBuilder struct {
	config GateConfig
	amount *big.Int

	// now is replaceable in tests.
	now func() time.Time
}

// NewRequirementsBuilder validates the gate configuration and returns a
// builder. It fails with a configuration error if the amount is not
// positive or the asset, network, or treasury address is malformed.
func NewRequirementsBuilder(config GateConfig) (*RequirementsBuilder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Scheme == "" {
		config.Scheme = "exact"
	}
	if config.MimeType == "" {
		config.MimeType = "application/json"
	}
	if config.MaxTimeoutSeconds == 0 {
		config.MaxTimeoutSeconds = 300
	}

	amount, err := resolveAmount(config)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, NewPaymentError(ErrCodeInvalidConfig,
			fmt.Sprintf("price must be positive, got %s", amount), ErrInvalidConfig)
	}

	if _, err := ValidateNetwork(config.Network); err != nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig, "unsupported network", err).
			WithDetails("network", config.Network)
	}
	if err := ValidateTokenAddress(config.Network, config.Asset); err != nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig, "malformed asset address", err).
			WithDetails("asset", config.Asset)
	}
	if err := ValidateAddress(config.Network, config.PayTo); err != nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig, "malformed payTo address", err).
			WithDetails("payTo", config.PayTo)
	}

	return &RequirementsBuilder{
		config: config,
		amount: amount,
		now:    time.Now,
	}, nil
}

// Build returns a fresh PaymentRequirement for the given resource URL.
// Each call carries a new random nonce and issue timestamp.
func (b *RequirementsBuilder) Build(resource string) (PaymentRequirement, error) {
	nonce, err := freshNonce()
	if err != nil {
		return PaymentRequirement{}, NewPaymentError(ErrCodeInvalidConfig,
			"failed to generate requirement nonce", err)
	}

	extra := map[string]interface{}{
		"issuedAt": b.now().Unix(),
	}
	if b.config.Discoverable {
		extra["discoverable"] = true
	}

	return PaymentRequirement{
		Scheme:            b.config.Scheme,
		Network:           b.config.Network,
		MaxAmountRequired: b.amount.String(),
		Asset:             b.config.Asset,
		PayTo:             b.config.PayTo,
		Resource:          resource,
		Description:       b.config.Description,
		MimeType:          b.config.MimeType,
		MaxTimeoutSeconds: b.config.MaxTimeoutSeconds,
		Nonce:             nonce,
		Extra:             extra,
	}, nil
}

// Amount returns the configured price in atomic units.
func (b *RequirementsBuilder) Amount() *big.Int {
	return new(big.Int).Set(b.amount)
}

func resolveAmount(config GateConfig) (*big.Int, error) {
	if config.Amount != "" {
		amount, ok := new(big.Int).SetString(config.Amount, 10)
		if !ok {
			return nil, NewPaymentError(ErrCodeInvalidConfig,
				fmt.Sprintf("invalid atomic amount %q", config.Amount), ErrInvalidAmount)
		}
		return amount, nil
	}

	amount, err := AmountToAtomic(config.Price, config.AssetDecimals)
	if err != nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig,
			fmt.Sprintf("invalid price %q for %d decimals", config.Price, config.AssetDecimals), err)
	}
	return amount, nil
}

// freshNonce generates a cryptographically random 32-byte hex nonce.
func freshNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(nonce[:]), nil
}
