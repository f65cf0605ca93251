// Package svm implements the "exact" payment scheme for Solana: an SPL
// token TransferChecked wrapped in a partially signed transaction. The
// payer signs as token owner; the facilitator adds the fee payer
// signature and broadcasts.
package svm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/zeroc-labs/x402-go"
)

const (
	computeUnitLimit = 6500
	computeUnitPrice = 1
)

// Signer signs Solana payment payloads.
type Signer struct {
	privateKey solana.PrivateKey
	network    string
	rpcURL     string
	tokens     []x402.TokenConfig
	priority   int
	maxAmount  *big.Int
}

// Option configures a Signer.
type Option func(*Signer) error

// WithPrivateKey sets the signing key from a base58-encoded private key.
func WithPrivateKey(base58Key string) Option {
	return func(s *Signer) error {
		key, err := solana.PrivateKeyFromBase58(base58Key)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
		}
		s.privateKey = key
		return nil
	}
}

// WithWalletFile loads the signing key from a wallet file. Both the
// versioned format and the legacy bare keypair array are accepted.
func WithWalletFile(path string) Option {
	return func(s *Signer) error {
		wallet, err := LoadWalletFile(path)
		if err != nil {
			return err
		}
		s.privateKey = wallet.PrivateKey()
		return nil
	}
}

// WithNetwork selects the Solana network ("solana" or "solana-devnet").
// Defaults to "solana".
func WithNetwork(network string) Option {
	return func(s *Signer) error {
		networkType, err := x402.ValidateNetwork(network)
		if err != nil {
			return err
		}
		if networkType != x402.NetworkTypeSVM {
			return fmt.Errorf("%w: %s is not a Solana network", x402.ErrInvalidNetwork, network)
		}
		s.network = network
		return nil
	}
}

// WithRPCURL overrides the RPC endpoint used to fetch blockhashes.
func WithRPCURL(rpcURL string) Option {
	return func(s *Signer) error {
		s.rpcURL = rpcURL
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

// NewSigner creates a Solana signer. A private key is required; tokens
// default to USDC on the selected network.
func NewSigner(opts ...Option) (*Signer, error) {
	s := &Signer{network: "solana"}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, fmt.Errorf("%w: no private key configured", x402.ErrInvalidKey)
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
func (s *Signer) Address() string { return s.privateKey.PublicKey().String() }

// CanSign implements x402.Signer.
func (s *Signer) CanSign(requirement *x402.PaymentRequirement) bool {
	if requirement.Scheme != "exact" || requirement.Network != s.network {
		return false
	}
	return s.tokenFor(requirement.Asset) != nil
}

// Sign implements x402.Signer. It builds and partially signs an SPL
// TransferChecked moving the required amount to the requirement's payTo.
func (s *Signer) Sign(requirement *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	tokenConfig := s.tokenFor(requirement.Asset)
	if tokenConfig == nil {
		return nil, fmt.Errorf("%w: token %s not configured", x402.ErrNoTokens, requirement.Asset)
	}

	amount, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok || amount.Sign() <= 0 || !amount.IsUint64() {
		return nil, fmt.Errorf("%w: %q", x402.ErrInvalidAmount, requirement.MaxAmountRequired)
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds signer limit %s",
			x402.ErrAmountExceeded, amount, s.maxAmount)
	}

	transaction, err := s.buildTransfer(requirement, tokenConfig, amount.Uint64())
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     s.network,
		Payload: x402.SVMPayload{
			Transaction: transaction,
			Claim: x402.PaymentClaim{
				Payer:    s.Address(),
				PayTo:    requirement.PayTo,
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
		if s.tokens[i].Address == asset {
			return &s.tokens[i]
		}
	}
	return nil
}

// buildTransfer assembles the partially signed transfer and returns it
// base64 encoded.
func (s *Signer) buildTransfer(requirement *x402.PaymentRequirement, tokenConfig *x402.TokenConfig, amount uint64) (string, error) {
	mint, err := solana.PublicKeyFromBase58(requirement.Asset)
	if err != nil {
		return "", fmt.Errorf("%w: invalid mint: %v", x402.ErrInvalidRequirements, err)
	}
	recipient, err := solana.PublicKeyFromBase58(requirement.PayTo)
	if err != nil {
		return "", fmt.Errorf("%w: invalid payTo: %v", x402.ErrInvalidRequirements, err)
	}
	feePayer, err := extractFeePayer(requirement)
	if err != nil {
		return "", err
	}

	owner := s.privateKey.PublicKey()
	sourceAccount, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive source token account: %w", err)
	}
	destAccount, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive destination token account: %w", err)
	}

	client := rpc.New(s.resolveRPCURL())
	ctx, cancel := context.WithTimeout(context.Background(), x402.DefaultTimeouts.VerifyTimeout)
	defer cancel()
	blockhash, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to fetch blockhash: %w", err)
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(computeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(computeUnitPrice).Build(),
		token.NewTransferCheckedInstruction(
			amount,
			uint8(tokenConfig.Decimals),
			sourceAccount,
			mint,
			destAccount,
			owner,
			[]solana.PublicKey{},
		).Build(),
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}

	encoded, err := tx.ToBase64()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return encoded, nil
}

// extractFeePayer pulls the facilitator's fee payer address from the
// requirement's extra data.
func extractFeePayer(requirement *x402.PaymentRequirement) (solana.PublicKey, error) {
	raw, ok := requirement.Extra["feePayer"]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%w: requirement missing feePayer", x402.ErrInvalidRequirements)
	}
	feePayerStr, ok := raw.(string)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%w: feePayer is not a string", x402.ErrInvalidRequirements)
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: invalid feePayer: %v", x402.ErrInvalidRequirements, err)
	}
	return feePayer, nil
}

func (s *Signer) resolveRPCURL() string {
	if s.rpcURL != "" {
		return s.rpcURL
	}
	if strings.HasSuffix(s.network, "devnet") {
		return rpc.DevNet_RPC
	}
	return rpc.MainNetBeta_RPC
}
