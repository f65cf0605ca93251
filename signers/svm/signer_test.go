package svm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/zeroc-labs/x402-go"
)

func newTestSigner(t *testing.T, opts ...Option) *Signer {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	signer, err := NewSigner(append([]Option{WithPrivateKey(key.String())}, opts...)...)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return signer
}

func TestNewSignerDefaultsToUSDC(t *testing.T) {
	signer := newTestSigner(t)

	if signer.Network() != "solana" {
		t.Errorf("Network = %q, want solana", signer.Network())
	}
	if signer.Scheme() != "exact" {
		t.Errorf("Scheme = %q, want exact", signer.Scheme())
	}
	tokens := signer.GetTokens()
	if len(tokens) != 1 || tokens[0].Address != x402.SolanaMainnet.USDCAddress {
		t.Errorf("tokens = %+v, want mainnet USDC", tokens)
	}
}

func TestNewSignerRequiresKey(t *testing.T) {
	if _, err := NewSigner(); !errors.Is(err, x402.ErrInvalidKey) {
		t.Errorf("error = %v, want %v", err, x402.ErrInvalidKey)
	}
}

func TestNewSignerRejectsEVMNetwork(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	_, err = NewSigner(WithPrivateKey(key.String()), WithNetwork("base"))
	if !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("error = %v, want %v", err, x402.ErrInvalidNetwork)
	}
}

func TestCanSign(t *testing.T) {
	signer := newTestSigner(t)

	tests := []struct {
		name        string
		requirement x402.PaymentRequirement
		want        bool
	}{
		{
			"matching requirement",
			x402.PaymentRequirement{Scheme: "exact", Network: "solana", Asset: x402.SolanaMainnet.USDCAddress},
			true,
		},
		{
			"wrong network",
			x402.PaymentRequirement{Scheme: "exact", Network: "base", Asset: x402.SolanaMainnet.USDCAddress},
			false,
		},
		{
			"wrong scheme",
			x402.PaymentRequirement{Scheme: "upto", Network: "solana", Asset: x402.SolanaMainnet.USDCAddress},
			false,
		},
		{
			"unknown token",
			x402.PaymentRequirement{Scheme: "exact", Network: "solana", Asset: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signer.CanSign(&tt.requirement); got != tt.want {
				t.Errorf("CanSign = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignRejectsOverLimitBeforeAnyNetworkCall(t *testing.T) {
	signer := newTestSigner(t, WithMaxAmount(big.NewInt(10000)))

	requirement := x402.PaymentRequirement{
		Scheme:            "exact",
		Network:           "solana",
		MaxAmountRequired: "10001",
		Asset:             x402.SolanaMainnet.USDCAddress,
		PayTo:             "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy",
	}

	_, err := signer.Sign(&requirement)
	if !errors.Is(err, x402.ErrAmountExceeded) {
		t.Errorf("error = %v, want %v", err, x402.ErrAmountExceeded)
	}
}

func TestSignRejectsBadAmount(t *testing.T) {
	signer := newTestSigner(t)

	for _, amount := range []string{"", "0", "-1", "abc"} {
		requirement := x402.PaymentRequirement{
			Scheme:            "exact",
			Network:           "solana",
			MaxAmountRequired: amount,
			Asset:             x402.SolanaMainnet.USDCAddress,
			PayTo:             "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy",
		}
		if _, err := signer.Sign(&requirement); !errors.Is(err, x402.ErrInvalidAmount) {
			t.Errorf("Sign(%q) error = %v, want %v", amount, err, x402.ErrInvalidAmount)
		}
	}
}

func TestExtractFeePayer(t *testing.T) {
	valid := x402.PaymentRequirement{
		Extra: map[string]interface{}{"feePayer": "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy"},
	}
	feePayer, err := extractFeePayer(&valid)
	if err != nil {
		t.Fatalf("extractFeePayer failed: %v", err)
	}
	if feePayer.String() != "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy" {
		t.Errorf("feePayer = %s, unexpected", feePayer)
	}

	missing := x402.PaymentRequirement{Extra: map[string]interface{}{}}
	if _, err := extractFeePayer(&missing); !errors.Is(err, x402.ErrInvalidRequirements) {
		t.Errorf("error = %v, want %v", err, x402.ErrInvalidRequirements)
	}

	notString := x402.PaymentRequirement{Extra: map[string]interface{}{"feePayer": 42}}
	if _, err := extractFeePayer(&notString); !errors.Is(err, x402.ErrInvalidRequirements) {
		t.Errorf("error = %v, want %v", err, x402.ErrInvalidRequirements)
	}
}
