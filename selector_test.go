package x402

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

// stubSigner is a minimal Signer for selection tests.
type stubSigner struct {
	name      string
	network   string
	tokens    []TokenConfig
	priority  int
	maxAmount *big.Int
}

func (s *stubSigner) Network() string { return s.network }
func (s *stubSigner) Scheme() string  { return "exact" }
func (s *stubSigner) Address() string { return s.name }

func (s *stubSigner) CanSign(requirement *PaymentRequirement) bool {
	if requirement.Network != s.network {
		return false
	}
	for _, token := range s.tokens {
		if token.Address == requirement.Asset {
			return true
		}
	}
	return false
}

func (s *stubSigner) Sign(requirement *PaymentRequirement) (*PaymentPayload, error) {
	return &PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     s.network,
		Payload: SVMPayload{
			Claim: PaymentClaim{Payer: s.name, IssuedAt: time.Now().Unix()},
		},
	}, nil
}

func (s *stubSigner) GetPriority() int         { return s.priority }
func (s *stubSigner) GetTokens() []TokenConfig { return s.tokens }
func (s *stubSigner) GetMaxAmount() *big.Int   { return s.maxAmount }

func solReq(amount string) PaymentRequirement {
	return PaymentRequirement{
		Scheme:            "exact",
		Network:           "solana",
		MaxAmountRequired: amount,
		Asset:             SolanaMainnet.USDCAddress,
	}
}

func solSigner(name string, priority int) *stubSigner {
	return &stubSigner{
		name:     name,
		network:  "solana",
		priority: priority,
		tokens:   []TokenConfig{{Address: SolanaMainnet.USDCAddress, Symbol: "USDC"}},
	}
}

func TestSelectPrefersLowerPriority(t *testing.T) {
	selector := NewDefaultPaymentSelector()
	backup := solSigner("backup", 2)
	primary := solSigner("primary", 1)

	signer, requirement, err := selector.Select(
		[]PaymentRequirement{solReq("10000")},
		[]Signer{backup, primary})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if signer.Address() != "primary" {
		t.Errorf("selected %q, want primary", signer.Address())
	}
	if requirement.MaxAmountRequired != "10000" {
		t.Errorf("requirement = %+v, unexpected", requirement)
	}
}

func TestSelectSkipsSignersOverTheirLimit(t *testing.T) {
	selector := NewDefaultPaymentSelector()
	capped := solSigner("capped", 1)
	capped.maxAmount = big.NewInt(5000)
	unlimited := solSigner("unlimited", 2)

	signer, _, err := selector.Select(
		[]PaymentRequirement{solReq("10000")},
		[]Signer{capped, unlimited})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if signer.Address() != "unlimited" {
		t.Errorf("selected %q, want unlimited (capped signer cannot cover)", signer.Address())
	}
}

func TestSelectNoCandidate(t *testing.T) {
	selector := NewDefaultPaymentSelector()
	evmOnly := &stubSigner{
		name:    "evm",
		network: "base",
		tokens:  []TokenConfig{{Address: BaseMainnet.USDCAddress}},
	}

	_, _, err := selector.Select([]PaymentRequirement{solReq("10000")}, []Signer{evmOnly})
	if !errors.Is(err, ErrNoValidSigner) {
		t.Errorf("error = %v, want %v", err, ErrNoValidSigner)
	}
}

func TestSelectEmptyInputs(t *testing.T) {
	selector := NewDefaultPaymentSelector()

	if _, _, err := selector.Select(nil, []Signer{solSigner("a", 1)}); !errors.Is(err, ErrInvalidRequirements) {
		t.Errorf("error = %v, want %v", err, ErrInvalidRequirements)
	}
	if _, _, err := selector.Select([]PaymentRequirement{solReq("1")}, nil); !errors.Is(err, ErrNoValidSigner) {
		t.Errorf("error = %v, want %v", err, ErrNoValidSigner)
	}
}

func TestSelectPicksRequirementTheSignerCanAnswer(t *testing.T) {
	selector := NewDefaultPaymentSelector()
	signer := solSigner("sol", 1)

	baseReq := PaymentRequirement{
		Scheme:            "exact",
		Network:           "base",
		MaxAmountRequired: "10000",
		Asset:             BaseMainnet.USDCAddress,
	}

	_, requirement, err := selector.Select(
		[]PaymentRequirement{baseReq, solReq("10000")},
		[]Signer{signer})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if requirement.Network != "solana" {
		t.Errorf("selected %s requirement, want solana", requirement.Network)
	}
}
