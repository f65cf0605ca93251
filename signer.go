package x402

import "math/big"

// Signer represents a payment signer for a specific blockchain. It is the
// wallet capability boundary: implementations are the only code permitted
// to touch private key material, and the protocol core only ever hands
// them a requirement and receives a signed payload back.
type Signer interface {
	// Network returns the blockchain network identifier (e.g., "base", "solana").
	Network() string

	// Scheme returns the payment scheme identifier (currently "exact").
	Scheme() string

	// Address returns the signer's wallet address, used for balance
	// preflight checks before signing.
	Address() string

	// CanSign checks if this signer can satisfy the given payment requirements.
	// Returns true if the signer supports the required network and has the required token.
	CanSign(requirement *PaymentRequirement) bool

	// Sign creates a signed payment payload for the given requirement.
	// Returns an error if signing fails or if the payment exceeds configured limits.
	Sign(requirement *PaymentRequirement) (*PaymentPayload, error)

	// GetPriority returns the signer's priority level.
	// Lower numbers indicate higher priority (1 > 2 > 3).
	GetPriority() int

	// GetTokens returns the list of tokens supported by this signer.
	GetTokens() []TokenConfig

	// GetMaxAmount returns the per-call spending limit, or nil if no limit is set.
	GetMaxAmount() *big.Int
}
