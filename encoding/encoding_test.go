package encoding

import (
	"encoding/base64"
	"errors"
	"testing"

	x402 "github.com/zeroc-labs/x402-go"
)

func TestEncodeDecodePayment(t *testing.T) {
	payment := x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "solana",
		Payload: x402.SVMPayload{
			Transaction: "dGVzdCB0cmFuc2FjdGlvbg==",
			Claim: x402.PaymentClaim{
				Payer:    "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
				PayTo:    "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy",
				Amount:   "10000",
				Asset:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				IssuedAt: 1700000000,
			},
		},
	}

	encoded, err := EncodePayment(payment)
	if err != nil {
		t.Fatalf("EncodePayment failed: %v", err)
	}

	decoded, err := DecodePayment(encoded)
	if err != nil {
		t.Fatalf("DecodePayment failed: %v", err)
	}

	if decoded.X402Version != payment.X402Version {
		t.Errorf("X402Version = %d, want %d", decoded.X402Version, payment.X402Version)
	}
	if decoded.Scheme != payment.Scheme {
		t.Errorf("Scheme = %q, want %q", decoded.Scheme, payment.Scheme)
	}
	if decoded.Network != payment.Network {
		t.Errorf("Network = %q, want %q", decoded.Network, payment.Network)
	}

	claim, err := x402.ClaimFrom(&decoded)
	if err != nil {
		t.Fatalf("ClaimFrom failed: %v", err)
	}
	if claim.Amount != "10000" {
		t.Errorf("claim.Amount = %q, want %q", claim.Amount, "10000")
	}
	if claim.Payer != "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM" {
		t.Errorf("claim.Payer = %q, unexpected", claim.Payer)
	}
}

func TestDecodePaymentHeader(t *testing.T) {
	valid, err := EncodePayment(x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base",
		Payload:     x402.EVMPayload{Signature: "0xdeadbeef"},
	})
	if err != nil {
		t.Fatalf("EncodePayment failed: %v", err)
	}

	badVersion, err := EncodePayment(x402.PaymentPayload{
		X402Version: 2,
		Scheme:      "exact",
		Network:     "base",
	})
	if err != nil {
		t.Fatalf("EncodePayment failed: %v", err)
	}

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid header", valid, nil},
		{"absent header", "", x402.ErrNoPayment},
		{"invalid base64", "not-base64!!!", x402.ErrMalformedHeader},
		{"invalid json", base64.StdEncoding.EncodeToString([]byte("{broken")), x402.ErrMalformedHeader},
		{"unsupported version", badVersion, x402.ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePaymentHeader(tt.header)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeSettlement(t *testing.T) {
	settlement := x402.SettlementResponse{
		Success:     true,
		Transaction: "5UfDuX1A2vku4AxJrBBAG1KeKfM7JcTEiB4mfLVzXzLj",
		Network:     "solana",
		Payer:       "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
	}

	encoded, err := EncodeSettlement(settlement)
	if err != nil {
		t.Fatalf("EncodeSettlement failed: %v", err)
	}

	decoded, err := DecodeSettlement(encoded)
	if err != nil {
		t.Fatalf("DecodeSettlement failed: %v", err)
	}

	if decoded != settlement {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, settlement)
	}
}

func TestDecodeSettlementErrors(t *testing.T) {
	if _, err := DecodeSettlement("!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	garbage := base64.StdEncoding.EncodeToString([]byte("not json"))
	if _, err := DecodeSettlement(garbage); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEncodeDecodeRequirements(t *testing.T) {
	requirements := x402.PaymentRequirementsResponse{
		X402Version: 1,
		Error:       "Payment required",
		Accepts: []x402.PaymentRequirement{
			{
				Scheme:            "exact",
				Network:           "solana",
				MaxAmountRequired: "10000",
				Asset:             "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				PayTo:             "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy",
				Resource:          "https://api.example.com/complete",
				MimeType:          "application/json",
				MaxTimeoutSeconds: 300,
				Nonce:             "a1b2c3",
			},
		},
	}

	encoded, err := EncodeRequirements(requirements)
	if err != nil {
		t.Fatalf("EncodeRequirements failed: %v", err)
	}

	decoded, err := DecodeRequirements(encoded)
	if err != nil {
		t.Fatalf("DecodeRequirements failed: %v", err)
	}

	if len(decoded.Accepts) != 1 {
		t.Fatalf("Accepts length = %d, want 1", len(decoded.Accepts))
	}
	if decoded.Accepts[0].Nonce != "a1b2c3" {
		t.Errorf("Nonce = %q, want %q", decoded.Accepts[0].Nonce, "a1b2c3")
	}
	if decoded.Accepts[0].MaxAmountRequired != "10000" {
		t.Errorf("MaxAmountRequired = %q, want %q", decoded.Accepts[0].MaxAmountRequired, "10000")
	}
}
