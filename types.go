package x402

import (
	"encoding/json"
	"math/big"

	"github.com/shopspring/decimal"
)

// PaymentRequirement describes one payment option the server will accept
// for a protected resource. It is produced fresh per request by the
// RequirementsBuilder and carried in the body of a 402 response; it is
// never persisted.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base", "solana").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units (e.g., wei, lamports).
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// MaxTimeoutSeconds is the validity period for the payment proof.
	// A proof issued longer ago than this window is rejected as stale.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Nonce is a fresh random value binding a proof to this requirement,
	// preventing requirement replay across unrelated requests.
	Nonce string `json:"nonce,omitempty"`

	// Extra contains scheme-specific additional data (e.g. feePayer for SVM).
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirementsResponse is the complete 402 response body.
type PaymentRequirementsResponse struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirement `json:"accepts"`
}

// PaymentPayload is a signed payment proof sent to the server in the
// X-PAYMENT header. The proof is owned transiently by the request and is
// never stored beyond settlement bookkeeping.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload contains the blockchain-specific signed payment data.
	// For EVM: EVMPayload with signature and authorization.
	// For Solana: SVMPayload with a partially signed transaction.
	Payload interface{} `json:"payload"`
}

// PaymentClaim is the metadata a payment proof asserts about itself: who
// pays whom, how much of which asset, and when the proof was issued. The
// server checks these claims against the requirement locally before
// delegating authenticity of the underlying signature to the ledger oracle.
type PaymentClaim struct {
	// Payer is the paying wallet address.
	Payer string `json:"payer"`

	// PayTo is the destination address the proof transfers to.
	PayTo string `json:"payTo"`

	// Amount is the transferred amount in atomic units.
	Amount string `json:"amount"`

	// Asset is the token contract or mint address being transferred.
	Asset string `json:"asset"`

	// Nonce echoes the requirement nonce the proof was built against.
	Nonce string `json:"nonce,omitempty"`

	// IssuedAt is the unix timestamp at which the proof was created.
	IssuedAt int64 `json:"issuedAt"`
}

// ClaimFrom extracts the PaymentClaim from a payment's scheme payload.
// It works for both typed payloads (EVMPayload, SVMPayload) and the
// map form produced by JSON decoding of the X-PAYMENT header.
func ClaimFrom(payment *PaymentPayload) (PaymentClaim, error) {
	switch p := payment.Payload.(type) {
	case EVMPayload:
		return p.Claim, nil
	case *EVMPayload:
		return p.Claim, nil
	case SVMPayload:
		return p.Claim, nil
	case *SVMPayload:
		return p.Claim, nil
	}

	// Decoded header payloads arrive as map[string]interface{}; round-trip
	// through JSON to pull out the claim block.
	raw, err := json.Marshal(payment.Payload)
	if err != nil {
		return PaymentClaim{}, ErrMalformedHeader
	}
	var wrapper struct {
		Claim *PaymentClaim `json:"claim"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Claim == nil {
		return PaymentClaim{}, ErrMissingClaim
	}
	return *wrapper.Claim, nil
}

// EVMPayload is the "exact" scheme payload for EVM chains: an EIP-3009
// transferWithAuthorization signature plus the authorization parameters.
type EVMPayload struct {
	// Signature is the hex-encoded ECDSA signature.
	Signature string `json:"signature"`

	// Authorization contains the EIP-3009 transferWithAuthorization parameters.
	Authorization EVMAuthorization `json:"authorization"`

	// Claim is the proof metadata asserted by the payer.
	Claim PaymentClaim `json:"claim"`
}

// EVMAuthorization represents EIP-3009 transferWithAuthorization parameters.
type EVMAuthorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units (wei).
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// SVMPayload is the "exact" scheme payload for Solana: a base64-encoded
// partially signed transaction. The client signs with their private key and
// the facilitator adds the fee payer signature before broadcast.
type SVMPayload struct {
	Transaction string `json:"transaction"`

	// Claim is the proof metadata asserted by the payer.
	Claim PaymentClaim `json:"claim"`
}

// SettlementResponse is the receipt returned after payment settlement,
// carried base64-encoded in the X-PAYMENT-RESPONSE header.
type SettlementResponse struct {
	// Success indicates whether the payment was successfully settled.
	Success bool `json:"success"`

	// ErrorReason provides details if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction reference.
	Transaction string `json:"transaction,omitempty"`

	// Network is the blockchain network where the payment was settled.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer"`
}

// TokenConfig represents configuration for a supported token.
type TokenConfig struct {
	// Address is the token contract address (EVM) or mint address (Solana).
	Address string

	// Symbol is the token symbol (e.g., "USDC", "SOL").
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// Priority is the token's priority level within the signer.
	// Lower numbers indicate higher priority (1 > 2 > 3). Default is 0.
	Priority int

	// Name is an optional human-readable token name.
	Name string
}

// AmountToAtomic converts a human-readable decimal amount string to atomic
// units. For example, "1.5" with 6 decimals becomes 1500000. Amounts with
// more fractional digits than the token supports are rejected rather than
// silently truncated.
func AmountToAtomic(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, ErrInvalidAmount
	}

	return scaled.BigInt(), nil
}

// AtomicToAmount converts atomic units to a human-readable decimal string.
// For example, 1500000 with 6 decimals becomes "1.5".
func AtomicToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}
