// Package helpers holds the request/response plumbing shared by the
// net/http, gin, and chi payment gates.
package helpers

import (
	"encoding/json"
	"net/http"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/encoding"
)

// PaymentHeader is the request header carrying the payment proof.
const PaymentHeader = "X-PAYMENT"

// PaymentResponseHeader is the response header carrying the settlement
// receipt.
const PaymentResponseHeader = "X-PAYMENT-RESPONSE"

// ParsePaymentFromRequest extracts and decodes the payment proof from the
// request. It returns x402.ErrNoPayment when no header is present.
func ParsePaymentFromRequest(r *http.Request) (*x402.PaymentPayload, error) {
	payment, err := encoding.DecodePaymentHeader(r.Header.Get(PaymentHeader))
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ResourceURL reconstructs the absolute URL of the requested resource for
// inclusion in payment requirements.
func ResourceURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.Path
}

// SendPaymentRequired writes the 402 challenge with the payment options
// the server accepts.
func SendPaymentRequired(w http.ResponseWriter, message string, accepts []x402.PaymentRequirement) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	if message == "" {
		message = "Payment required"
	}
	_ = json.NewEncoder(w).Encode(x402.PaymentRequirementsResponse{
		X402Version: 1,
		Error:       message,
		Accepts:     accepts,
	})
}

// AddPaymentResponseHeader attaches the encoded settlement receipt to the
// response. Must be called before the response status is written.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *x402.SettlementResponse) error {
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return err
	}
	w.Header().Set(PaymentResponseHeader, encoded)
	return nil
}

// FindMatchingRequirement locates the requirement a payment proof answers,
// matching on scheme and network.
func FindMatchingRequirement(accepts []x402.PaymentRequirement, payment *x402.PaymentPayload) *x402.PaymentRequirement {
	for i := range accepts {
		if accepts[i].Scheme == payment.Scheme && accepts[i].Network == payment.Network {
			return &accepts[i]
		}
	}
	return nil
}

// SendJSONError writes a JSON error body with the given status.
func SendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
