package x402

import "errors"

// Sentinel errors for payment operations.

var (
	// ErrPaymentRequired indicates that payment is required to access the resource.
	ErrPaymentRequired = errors.New("x402: payment required")

	// ErrPaymentNotAccepted indicates the server demanded payment again after
	// a payment was already presented. The client treats this as a protocol
	// failure and never retries with a further payment.
	ErrPaymentNotAccepted = errors.New("x402: server rejected presented payment with another 402")

	// ErrMalformedHeader indicates that the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrNoPayment indicates that no payment was presented at all. It is a
	// distinguished signal, not a failure: the server branches into the 402
	// challenge path when it sees it.
	ErrNoPayment = errors.New("x402: no payment presented")

	// ErrMissingClaim indicates a proof payload without claim metadata.
	ErrMissingClaim = errors.New("x402: payment proof carries no claim metadata")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrInvalidConfig indicates invalid gate or client configuration.
	ErrInvalidConfig = errors.New("x402: invalid configuration")

	// ErrInvalidAmount indicates an invalid amount string.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidNetwork indicates an invalid or unsupported network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidRequirements indicates the payment requirements from the server are invalid.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrInvalidKeystore indicates an invalid or corrupted keystore file.
	ErrInvalidKeystore = errors.New("x402: invalid keystore file")

	// ErrInvalidMnemonic indicates an invalid BIP39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("x402: invalid mnemonic phrase")

	// ErrNoTokens indicates no tokens are configured for the signer.
	ErrNoTokens = errors.New("x402: no tokens configured")

	// ErrNoValidSigner indicates no signer can satisfy the payment requirements.
	ErrNoValidSigner = errors.New("x402: no signer can satisfy payment requirements")

	// ErrSigningFailed indicates the payment signing operation failed.
	ErrSigningFailed = errors.New("x402: payment signing failed")

	// ErrAmountExceeded indicates the required payment exceeds the configured
	// spending cap. The signer is never invoked in this case.
	ErrAmountExceeded = errors.New("x402: payment amount exceeds spending cap")

	// ErrInsufficientBalance indicates the payer's balance cannot cover the
	// required amount. Raised before any signing or network side effect.
	ErrInsufficientBalance = errors.New("x402: insufficient balance for payment")

	// ErrBalanceUnknown indicates the balance oracle could not determine the
	// payer's balance and the client is configured to abort in that case.
	ErrBalanceUnknown = errors.New("x402: balance could not be determined")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrOracleUnreachable indicates the ledger oracle could not be reached.
	// Verification is side-effect free, so retrying from scratch is safe.
	ErrOracleUnreachable = errors.New("x402: ledger oracle unreachable")

	// ErrSettlementFailed indicates on-chain settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrSettlementInProgress indicates another request holds the in-flight
	// settlement for the same proof. Transient; retry-after semantics.
	ErrSettlementInProgress = errors.New("x402: settlement already in progress for proof")
)

// RejectReason identifies why a payment proof failed verification.
type RejectReason string

const (
	ReasonAssetMismatch     RejectReason = "asset_mismatch"
	ReasonNetworkMismatch   RejectReason = "network_mismatch"
	ReasonUnderpaid         RejectReason = "underpaid"
	ReasonRecipientMismatch RejectReason = "recipient_mismatch"
	ReasonStale             RejectReason = "stale"
	ReasonInvalidSignature  RejectReason = "invalid_signature"
	ReasonAlreadySpent      RejectReason = "already_spent"
	ReasonOracleUnreachable RejectReason = "oracle_unreachable"
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeNoValidSigner indicates no signer can satisfy requirements.
	ErrCodeNoValidSigner ErrorCode = "NO_VALID_SIGNER"

	// ErrCodeAmountExceeded indicates payment exceeds the spending cap.
	ErrCodeAmountExceeded ErrorCode = "AMOUNT_EXCEEDED"

	// ErrCodeInsufficientBalance indicates the payer cannot cover the amount.
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"

	// ErrCodeInvalidRequirements indicates invalid server requirements.
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"

	// ErrCodeInvalidConfig indicates invalid gate or client configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrCodeSigningFailed indicates signing operation failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeNetworkError indicates network communication error.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"

	// ErrCodePaymentNotAccepted indicates the paid retry drew another 402.
	ErrCodePaymentNotAccepted ErrorCode = "PAYMENT_NOT_ACCEPTED"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
