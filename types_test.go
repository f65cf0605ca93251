package x402

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestAmountToAtomic(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{"0.01", 6, "10000", false},
		{"1.5", 6, "1500000", false},
		{"2", 6, "2000000", false},
		{"0.000001", 6, "1", false},
		{"1", 18, "1000000000000000000", false},
		{"0.0000001", 6, "", true},
		{"abc", 6, "", true},
		{"", 6, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := AmountToAtomic(tt.amount, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Errorf("AmountToAtomic(%q, %d) succeeded, want error", tt.amount, tt.decimals)
				}
				return
			}
			if err != nil {
				t.Fatalf("AmountToAtomic failed: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("AmountToAtomic(%q, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestAtomicToAmount(t *testing.T) {
	if got := AtomicToAmount(big.NewInt(1500000), 6); got != "1.5" {
		t.Errorf("AtomicToAmount = %q, want 1.5", got)
	}
	if got := AtomicToAmount(big.NewInt(10000), 6); got != "0.01" {
		t.Errorf("AtomicToAmount = %q, want 0.01", got)
	}
	if got := AtomicToAmount(nil, 6); got != "0" {
		t.Errorf("AtomicToAmount(nil) = %q, want 0", got)
	}
}

func TestClaimFromTypedPayloads(t *testing.T) {
	claim := PaymentClaim{Payer: "payer", PayTo: "treasury", Amount: "10000", Asset: "mint"}

	payloads := []interface{}{
		EVMPayload{Claim: claim},
		&EVMPayload{Claim: claim},
		SVMPayload{Claim: claim},
		&SVMPayload{Claim: claim},
	}
	for _, payload := range payloads {
		payment := PaymentPayload{X402Version: 1, Payload: payload}
		got, err := ClaimFrom(&payment)
		if err != nil {
			t.Fatalf("ClaimFrom(%T) failed: %v", payload, err)
		}
		if got != claim {
			t.Errorf("ClaimFrom(%T) = %+v, want %+v", payload, got, claim)
		}
	}
}

func TestClaimFromDecodedMapPayload(t *testing.T) {
	// Header decoding yields map payloads, not typed structs.
	raw, err := json.Marshal(PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "solana",
		Payload: SVMPayload{
			Transaction: "dGVzdA==",
			Claim:       PaymentClaim{Payer: "payer", PayTo: "treasury", Amount: "10000", Asset: "mint"},
		},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded PaymentPayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	claim, err := ClaimFrom(&decoded)
	if err != nil {
		t.Fatalf("ClaimFrom failed: %v", err)
	}
	if claim.Amount != "10000" || claim.Payer != "payer" {
		t.Errorf("claim = %+v, unexpected", claim)
	}
}

func TestClaimFromMissing(t *testing.T) {
	payment := PaymentPayload{X402Version: 1, Payload: map[string]interface{}{"transaction": "x"}}
	if _, err := ClaimFrom(&payment); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("error = %v, want %v", err, ErrMissingClaim)
	}
}

func TestChainByNetwork(t *testing.T) {
	chain, err := ChainByNetwork("base")
	if err != nil {
		t.Fatalf("ChainByNetwork failed: %v", err)
	}
	if chain.ChainID != 8453 || chain.NetworkType != NetworkTypeEVM {
		t.Errorf("chain = %+v, unexpected", chain)
	}

	if _, err := ChainByNetwork("dogecoin"); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("error = %v, want %v", err, ErrInvalidNetwork)
	}
}

func TestValidateAddress(t *testing.T) {
	if err := ValidateAddress("base", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"); err != nil {
		t.Errorf("valid EVM address rejected: %v", err)
	}
	if err := ValidateAddress("solana", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"); err != nil {
		t.Errorf("valid Solana address rejected: %v", err)
	}
	if err := ValidateAddress("base", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"); err == nil {
		t.Error("Solana address accepted on EVM network")
	}
	if err := ValidateAddress("solana", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"); err == nil {
		t.Error("EVM address accepted on Solana network")
	}
}

func TestPaymentErrorWrapping(t *testing.T) {
	err := NewPaymentError(ErrCodeAmountExceeded, "too expensive", ErrAmountExceeded).
		WithDetails("required", "2000001")

	if !errors.Is(err, ErrAmountExceeded) {
		t.Error("PaymentError does not unwrap to sentinel")
	}
	if err.Code != ErrCodeAmountExceeded {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodeAmountExceeded)
	}
	if err.Details["required"] != "2000001" {
		t.Errorf("Details = %+v, missing required", err.Details)
	}

	var paymentErr *PaymentError
	if !errors.As(error(err), &paymentErr) {
		t.Error("errors.As failed to find PaymentError")
	}
}
