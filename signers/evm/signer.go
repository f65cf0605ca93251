// Package evm implements the "exact" payment scheme for EVM chains via
// EIP-3009 transferWithAuthorization: the payer signs an authorization
// off-chain and the facilitator submits it, so the payer needs no gas.
package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/zeroc-labs/x402-go"
)

// defaultValiditySeconds bounds an authorization's lifetime when the
// requirement does not specify one.
const defaultValiditySeconds = 600

// Signer signs EVM payment payloads.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	network    string
	chainID    *big.Int
	tokens     []x402.TokenConfig
	priority   int
	maxAmount  *big.Int
}

// Option configures a Signer.
type Option func(*Signer) error

// WithPrivateKey sets the signing key from a hex-encoded private key.
func WithPrivateKey(hexKey string) Option {
	return func(s *Signer) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
		}
		s.privateKey = key
		return nil
	}
}

// WithNetwork selects the EVM network ("base", "base-sepolia",
// "ethereum"). Defaults to "base".
func WithNetwork(network string) Option {
	return func(s *Signer) error {
		chain, err := x402.ChainByNetwork(network)
		if err != nil {
			return err
		}
		if chain.NetworkType != x402.NetworkTypeEVM {
			return fmt.Errorf("%w: %s is not an EVM network", x402.ErrInvalidNetwork, network)
		}
		s.network = network
		s.chainID = big.NewInt(chain.ChainID)
		return nil
	}
}

// WithTokens sets the tokens this signer can pay with.
func WithTokens(tokens ...x402.TokenConfig) Option {
	return func(s *Signer) error {
		s.tokens = append(s.tokens, tokens...)
		return nil
	}
}

// WithPriority sets the signer's selection priority.
func WithPriority(priority int) Option {
	return func(s *Signer) error {
		s.priority = priority
		return nil
	}
}

// WithMaxAmount caps what this signer will pay per call, in atomic units.
func WithMaxAmount(max *big.Int) Option {
	return func(s *Signer) error {
		if max == nil || max.Sign() <= 0 {
			return fmt.Errorf("%w: max amount must be positive", x402.ErrInvalidConfig)
		}
		s.maxAmount = new(big.Int).Set(max)
		return nil
	}
}

// NewSigner creates an EVM signer. A private key is required; tokens
// default to USDC on the selected network.
func NewSigner(opts ...Option) (*Signer, error) {
	s := &Signer{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, fmt.Errorf("%w: no private key configured", x402.ErrInvalidKey)
	}
	if s.network == "" {
		s.network = x402.BaseMainnet.NetworkID
		s.chainID = big.NewInt(x402.BaseMainnet.ChainID)
	}
	if len(s.tokens) == 0 {
		chain, err := x402.ChainByNetwork(s.network)
		if err != nil {
			return nil, err
		}
		s.tokens = []x402.TokenConfig{{
			Address:  chain.USDCAddress,
			Symbol:   "USDC",
			Decimals: chain.USDCDecimals,
		}}
	}
	return s, nil
}

// Network implements x402.Signer.
func (s *Signer) Network() string { return s.network }

// Scheme implements x402.Signer.
func (s *Signer) Scheme() string { return "exact" }

// Address implements x402.Signer.
func (s *Signer) Address() string {
	return crypto.PubkeyToAddress(s.privateKey.PublicKey).Hex()
}

// CanSign implements x402.Signer.
func (s *Signer) CanSign(requirement *x402.PaymentRequirement) bool {
	if requirement.Scheme != "exact" || requirement.Network != s.network {
		return false
	}
	return s.tokenFor(requirement.Asset) != nil
}

// Sign implements x402.Signer. It signs an EIP-3009 authorization moving
// the required amount to the requirement's payTo.
func (s *Signer) Sign(requirement *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if s.tokenFor(requirement.Asset) == nil {
		return nil, fmt.Errorf("%w: token %s not configured", x402.ErrNoTokens, requirement.Asset)
	}

	amount, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", x402.ErrInvalidAmount, requirement.MaxAmountRequired)
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds signer limit %s",
			x402.ErrAmountExceeded, amount, s.maxAmount)
	}
	if !common.IsHexAddress(requirement.PayTo) {
		return nil, fmt.Errorf("%w: invalid payTo %q", x402.ErrInvalidRequirements, requirement.PayTo)
	}
	if !common.IsHexAddress(requirement.Asset) {
		return nil, fmt.Errorf("%w: invalid asset %q", x402.ErrInvalidRequirements, requirement.Asset)
	}

	validSeconds := int64(requirement.MaxTimeoutSeconds)
	if validSeconds <= 0 {
		validSeconds = defaultValiditySeconds
	}

	from := common.HexToAddress(s.Address())
	to := common.HexToAddress(requirement.PayTo)
	auth, err := newAuthorization(from, to, amount, validSeconds)
	if err != nil {
		return nil, err
	}

	tokenName, tokenVersion := domainFromRequirement(requirement)
	signature, err := signTransferAuthorization(auth, s.chainID, tokenName, tokenVersion,
		common.HexToAddress(requirement.Asset), s.privateKey)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     s.network,
		Payload: x402.EVMPayload{
			Signature: signature,
			Authorization: x402.EVMAuthorization{
				From:        auth.From.Hex(),
				To:          auth.To.Hex(),
				Value:       auth.Value.String(),
				ValidAfter:  auth.ValidAfter.String(),
				ValidBefore: auth.ValidBefore.String(),
				Nonce:       hexutil.Encode(auth.Nonce[:]),
			},
			Claim: x402.PaymentClaim{
				Payer:    auth.From.Hex(),
				PayTo:    auth.To.Hex(),
				Amount:   amount.String(),
				Asset:    requirement.Asset,
				Nonce:    requirement.Nonce,
				IssuedAt: time.Now().Unix(),
			},
		},
	}, nil
}

// GetPriority implements x402.Signer.
func (s *Signer) GetPriority() int { return s.priority }

// GetTokens implements x402.Signer.
func (s *Signer) GetTokens() []x402.TokenConfig { return s.tokens }

// GetMaxAmount implements x402.Signer.
func (s *Signer) GetMaxAmount() *big.Int {
	if s.maxAmount == nil {
		return nil
	}
	return new(big.Int).Set(s.maxAmount)
}

func (s *Signer) tokenFor(asset string) *x402.TokenConfig {
	for i := range s.tokens {
		if strings.EqualFold(s.tokens[i].Address, asset) {
			return &s.tokens[i]
		}
	}
	return nil
}

// domainFromRequirement reads the token's EIP-712 domain parameters from
// the requirement's extra data, defaulting to Circle's USDC domain.
func domainFromRequirement(requirement *x402.PaymentRequirement) (name, version string) {
	name, version = "USD Coin", "2"
	if requirement.Extra == nil {
		return name, version
	}
	if n, ok := requirement.Extra["name"].(string); ok && n != "" {
		name = n
	}
	if v, ok := requirement.Extra["version"].(string); ok && v != "" {
		version = v
	}
	return name, version
}
