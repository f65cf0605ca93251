// Package verify implements payment proof verification: a fixed sequence
// of local checks against the requirement, then delegation to the ledger
// oracle for signature authenticity and double-spend detection. The local
// checks short-circuit at the first failure so an obviously wrong proof
// never costs an oracle round trip.
package verify

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/facilitator"
	"github.com/zeroc-labs/x402-go/logger"
	"github.com/zeroc-labs/x402-go/metrics"
	"github.com/zeroc-labs/x402-go/validation"
)

// Result is the verification verdict for a payment proof.
type Result struct {
	// Valid reports whether the proof satisfies the requirement.
	Valid bool

	// Reason is set when Valid is false.
	Reason x402.RejectReason

	// Detail is a human-readable elaboration of the rejection.
	Detail string

	// Payer is the verified paying address, set when Valid is true.
	Payer string
}

func reject(reason x402.RejectReason, format string, args ...interface{}) *Result {
	return &Result{Valid: false, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Verifier checks payment proofs against payment requirements.
type Verifier struct {
	oracle  facilitator.Oracle
	timeout time.Duration
	log     logger.Logger
	rec     metrics.Recorder

	// now is replaceable in tests.
	now func() time.Time

	// clockSkew is how far in the future a proof's issue time may sit
	// before it is rejected as stale.
	clockSkew time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithVerifyTimeout bounds the oracle verification call.
func WithVerifyTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithLogger sets the verifier's logger.
func WithLogger(log logger.Logger) Option {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// WithMetrics sets the verifier's metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(v *Verifier) {
		if rec != nil {
			v.rec = rec
		}
	}
}

// WithClock replaces the verifier's time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a Verifier delegating authenticity checks to the
// given oracle.
func NewVerifier(oracle facilitator.Oracle, opts ...Option) *Verifier {
	v := &Verifier{
		oracle:    oracle,
		timeout:   x402.DefaultTimeouts.VerifyTimeout,
		log:       logger.NewNop(),
		rec:       metrics.NewNop(),
		now:       time.Now,
		clockSkew: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the proof in order: envelope, asset, network, amount,
// recipient, freshness, then oracle. A proof rejected by any check returns
// a Result with Valid false and a nil error; an error return means the
// oracle could not be consulted and the caller may safely retry the whole
// verification.
func (v *Verifier) Verify(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*Result, error) {
	if err := validation.ValidatePaymentPayload(payment); err != nil {
		return reject(x402.ReasonInvalidSignature, "malformed payment: %v", err), nil
	}

	claim, err := x402.ClaimFrom(payment)
	if err != nil {
		return reject(x402.ReasonInvalidSignature, "payment carries no claim: %v", err), nil
	}

	if result := v.checkLocally(payment, &claim, requirement); result != nil {
		v.log.Debug("payment rejected locally",
			logger.F("reason", string(result.Reason)),
			logger.F("detail", result.Detail))
		v.rec.RecordEvent("rejected_"+string(result.Reason), payment.Network, payment.Scheme)
		return result, nil
	}

	return v.checkWithOracle(ctx, payment, &claim, requirement)
}

// checkLocally runs the ordered requirement checks. Returns nil when all
// pass.
func (v *Verifier) checkLocally(payment *x402.PaymentPayload, claim *x402.PaymentClaim, requirement *x402.PaymentRequirement) *Result {
	if !sameAddress(requirement.Network, claim.Asset, requirement.Asset) {
		return reject(x402.ReasonAssetMismatch,
			"paid with %s, requirement wants %s", claim.Asset, requirement.Asset)
	}

	if payment.Network != requirement.Network {
		return reject(x402.ReasonNetworkMismatch,
			"paid on %s, requirement wants %s", payment.Network, requirement.Network)
	}

	paid, ok := new(big.Int).SetString(claim.Amount, 10)
	if !ok {
		return reject(x402.ReasonUnderpaid, "unparseable amount %q", claim.Amount)
	}
	required, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok {
		return reject(x402.ReasonUnderpaid, "unparseable required amount %q", requirement.MaxAmountRequired)
	}
	// Overpayment is the payer's prerogative; underpayment is rejected.
	if paid.Cmp(required) < 0 {
		return reject(x402.ReasonUnderpaid, "paid %s, required %s", paid, required)
	}

	if !sameAddress(requirement.Network, claim.PayTo, requirement.PayTo) {
		return reject(x402.ReasonRecipientMismatch,
			"pays %s, requirement wants %s", claim.PayTo, requirement.PayTo)
	}

	if requirement.MaxTimeoutSeconds > 0 {
		issued := time.Unix(claim.IssuedAt, 0)
		now := v.now()
		age := now.Sub(issued)
		if age > time.Duration(requirement.MaxTimeoutSeconds)*time.Second {
			return reject(x402.ReasonStale, "proof issued %s ago, window is %ds",
				age.Truncate(time.Second), requirement.MaxTimeoutSeconds)
		}
		if issued.After(now.Add(v.clockSkew)) {
			return reject(x402.ReasonStale, "proof issued in the future")
		}
	}

	return nil
}

// checkWithOracle delegates signature authenticity and double-spend
// detection to the ledger oracle.
func (v *Verifier) checkWithOracle(ctx context.Context, payment *x402.PaymentPayload, claim *x402.PaymentClaim, requirement *x402.PaymentRequirement) (*Result, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := v.now()
	response, err := v.oracle.Verify(verifyCtx, payment, requirement)
	v.rec.RecordLatency("verify", payment.Network, time.Since(start))

	if err != nil {
		v.log.Warn("ledger oracle unreachable", logger.F("error", err.Error()))
		v.rec.RecordEvent("oracle_unreachable", payment.Network, payment.Scheme)
		return nil, fmt.Errorf("%w: %v", x402.ErrOracleUnreachable, err)
	}

	if !response.IsValid {
		reason := mapOracleReason(response.InvalidReason)
		v.log.Info("payment rejected by oracle",
			logger.F("reason", response.InvalidReason))
		v.rec.RecordEvent("rejected_"+string(reason), payment.Network, payment.Scheme)
		return reject(reason, "oracle: %s", response.InvalidReason), nil
	}

	payer := response.Payer
	if payer == "" {
		payer = claim.Payer
	}

	v.rec.RecordEvent("verified", payment.Network, payment.Scheme)
	return &Result{Valid: true, Payer: payer}, nil
}

// mapOracleReason folds oracle rejection strings onto the protocol's
// reject reasons. Unknown strings count as signature failures.
func mapOracleReason(invalidReason string) x402.RejectReason {
	switch {
	case strings.Contains(invalidReason, "already"),
		strings.Contains(invalidReason, "spent"),
		strings.Contains(invalidReason, "used"):
		return x402.ReasonAlreadySpent
	case strings.Contains(invalidReason, "balance"),
		strings.Contains(invalidReason, "funds"):
		return x402.ReasonUnderpaid
	default:
		return x402.ReasonInvalidSignature
	}
}

// sameAddress compares two addresses under the network's conventions:
// EVM addresses are case-insensitive hex, Solana addresses are
// case-sensitive base58.
func sameAddress(network, a, b string) bool {
	networkType, err := x402.ValidateNetwork(network)
	if err == nil && networkType == x402.NetworkTypeEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}
