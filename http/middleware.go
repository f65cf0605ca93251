package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/facilitator"
	"github.com/zeroc-labs/x402-go/http/internal/helpers"
	"github.com/zeroc-labs/x402-go/ledger"
	"github.com/zeroc-labs/x402-go/logger"
	"github.com/zeroc-labs/x402-go/metrics"
	"github.com/zeroc-labs/x402-go/verify"
)

// PaymentGate is the server-side payment enforcement point. Wrapped around
// a handler, it challenges unpaid requests with 402, verifies presented
// proofs, runs the handler, and settles the payment only when the handler
// commits a success response. A handler failure costs the payer nothing.
type PaymentGate struct {
	builder  *x402.RequirementsBuilder
	verifier *verify.Verifier
	settler  *ledger.Settler
	timeouts x402.TimeoutConfig
	log      logger.Logger
	rec      metrics.Recorder

	// strictHeader rejects malformed payment headers with 400 instead of
	// re-challenging with 402.
	strictHeader bool

	// customLedger, when set, replaces the default in-memory ledger at
	// construction time.
	customLedger ledger.Ledger
}

// GateOption configures a PaymentGate.
type GateOption func(*PaymentGate)

// WithGateLogger sets the gate's logger.
func WithGateLogger(log logger.Logger) GateOption {
	return func(g *PaymentGate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithGateMetrics sets the gate's metrics recorder.
func WithGateMetrics(rec metrics.Recorder) GateOption {
	return func(g *PaymentGate) {
		if rec != nil {
			g.rec = rec
		}
	}
}

// WithGateTimeouts overrides the verify/settle timeout bounds.
func WithGateTimeouts(timeouts x402.TimeoutConfig) GateOption {
	return func(g *PaymentGate) { g.timeouts = timeouts }
}

// WithStrictHeader makes malformed payment headers a 400 client error.
// By default a malformed header is treated like an absent one and draws a
// fresh 402 challenge.
func WithStrictHeader() GateOption {
	return func(g *PaymentGate) { g.strictHeader = true }
}

// WithLedger replaces the default in-memory settlement ledger, e.g. with a
// shared implementation for multi-instance deployments.
func WithLedger(l ledger.Ledger) GateOption {
	return func(g *PaymentGate) { g.customLedger = l }
}

// NewPaymentGate creates a payment gate from an immutable configuration
// and a ledger oracle. The configuration is validated up front; a gate
// that constructs successfully will never fail on configuration at
// request time.
func NewPaymentGate(config x402.GateConfig, oracle facilitator.Oracle, opts ...GateOption) (*PaymentGate, error) {
	builder, err := x402.NewRequirementsBuilder(config)
	if err != nil {
		return nil, err
	}

	g := &PaymentGate{
		builder:  builder,
		timeouts: x402.DefaultTimeouts,
		log:      logger.NewNop(),
		rec:      metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.timeouts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidConfig, err)
	}

	settlementLedger := g.customLedger
	if settlementLedger == nil {
		settlementLedger = ledger.NewInMemoryLedger()
	}

	g.verifier = verify.NewVerifier(oracle,
		verify.WithVerifyTimeout(g.timeouts.VerifyTimeout),
		verify.WithLogger(g.log),
		verify.WithMetrics(g.rec))
	g.settler = ledger.NewSettler(oracle, settlementLedger,
		ledger.WithSettleTimeout(g.timeouts.SettleTimeout),
		ledger.WithLogger(g.log),
		ledger.WithMetrics(g.rec))

	return g, nil
}

// BuildRequirement returns a fresh payment requirement for a resource URL.
// Exposed for framework adapters that drive the gate steps themselves.
func (g *PaymentGate) BuildRequirement(resource string) (x402.PaymentRequirement, error) {
	return g.builder.Build(resource)
}

// VerifyPayment checks a payment proof against a requirement.
func (g *PaymentGate) VerifyPayment(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*verify.Result, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, g.timeouts.VerifyTimeout)
	defer cancel()
	return g.verifier.Verify(verifyCtx, payment, requirement)
}

// SettlePayment settles a verified payment proof exactly once.
func (g *PaymentGate) SettlePayment(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	return g.settler.Settle(ctx, payment, requirement)
}

// StrictHeader reports whether malformed payment headers are client errors.
func (g *PaymentGate) StrictHeader() bool {
	return g.strictHeader
}

// Middleware wraps next with payment enforcement.
func (g *PaymentGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, next)
	})
}

func (g *PaymentGate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	resource := helpers.ResourceURL(r)

	requirement, err := g.builder.Build(resource)
	if err != nil {
		g.log.Error("failed to build payment requirement", logger.F("error", err.Error()))
		helpers.SendJSONError(w, http.StatusInternalServerError, "payment configuration error")
		return
	}

	payment, err := helpers.ParsePaymentFromRequest(r)
	if err != nil {
		g.challenge(w, r, requirement, err)
		return
	}

	verifyCtx, cancel := context.WithTimeout(r.Context(), g.timeouts.VerifyTimeout)
	result, err := g.verifier.Verify(verifyCtx, payment, &requirement)
	cancel()
	if err != nil {
		g.log.Error("verification unavailable",
			logger.F("resource", resource),
			logger.F("error", err.Error()))
		helpers.SendJSONError(w, http.StatusBadGateway, "payment verification unavailable")
		return
	}
	if !result.Valid {
		g.log.Info("payment rejected",
			logger.F("resource", resource),
			logger.F("reason", string(result.Reason)))
		helpers.SendPaymentRequired(w,
			fmt.Sprintf("payment rejected: %s", result.Reason),
			[]x402.PaymentRequirement{requirement})
		return
	}

	g.log.Debug("payment verified",
		logger.F("resource", resource),
		logger.F("payer", result.Payer))

	r = r.WithContext(withPayer(r.Context(), result.Payer))

	interceptor := &settlementInterceptor{
		ResponseWriter: w,
		request:        r,
		settle: func(ctx context.Context) (*x402.SettlementResponse, error) {
			return g.settler.Settle(ctx, payment, &requirement)
		},
		log: g.log,
	}
	next.ServeHTTP(interceptor, r)

	// A handler that never wrote anything still owes the client a response.
	if !interceptor.wroteHeader {
		interceptor.WriteHeader(http.StatusOK)
	}
}

// challenge answers a request without a usable payment proof.
func (g *PaymentGate) challenge(w http.ResponseWriter, r *http.Request, requirement x402.PaymentRequirement, cause error) {
	switch {
	case errors.Is(cause, x402.ErrNoPayment):
		g.rec.RecordEvent("challenge_issued", requirement.Network, requirement.Scheme)
		helpers.SendPaymentRequired(w, "", []x402.PaymentRequirement{requirement})

	case g.strictHeader:
		g.log.Info("malformed payment header", logger.F("error", cause.Error()))
		helpers.SendJSONError(w, http.StatusBadRequest, "malformed payment header")

	default:
		g.log.Info("unusable payment header, re-challenging", logger.F("error", cause.Error()))
		g.rec.RecordEvent("challenge_issued", requirement.Network, requirement.Scheme)
		helpers.SendPaymentRequired(w, cause.Error(), []x402.PaymentRequirement{requirement})
	}
}

// settlementInterceptor defers settlement until the wrapped handler
// commits its response status. Success statuses trigger settlement before
// the status line goes out, so the receipt header can ride along; error
// statuses pass through unsettled and the payer keeps their money. If
// settlement fails after the handler succeeded, the handler's payload is
// discarded and the client gets a 402 instead of unpaid-for value.
type settlementInterceptor struct {
	http.ResponseWriter
	request *http.Request
	settle  func(ctx context.Context) (*x402.SettlementResponse, error)
	log     logger.Logger

	wroteHeader bool
	discard     bool
}

func (si *settlementInterceptor) WriteHeader(status int) {
	if si.wroteHeader {
		return
	}
	si.wroteHeader = true

	if status >= 400 {
		si.ResponseWriter.WriteHeader(status)
		return
	}

	settlement, err := si.settle(si.request.Context())
	if err != nil {
		si.log.Error("settlement failed after successful handler",
			logger.F("error", err.Error()))
		si.discard = true
		helpers.SendJSONError(si.ResponseWriter, http.StatusPaymentRequired,
			"payment settlement failed")
		return
	}

	if err := helpers.AddPaymentResponseHeader(si.ResponseWriter, settlement); err != nil {
		si.log.Error("failed to encode settlement receipt", logger.F("error", err.Error()))
	}
	si.ResponseWriter.WriteHeader(status)
}

func (si *settlementInterceptor) Write(b []byte) (int, error) {
	if !si.wroteHeader {
		si.WriteHeader(http.StatusOK)
	}
	if si.discard {
		// Swallow the payload; the settlement failure response already
		// went out.
		return len(b), nil
	}
	return si.ResponseWriter.Write(b)
}

// Flush implements http.Flusher when the underlying writer does.
func (si *settlementInterceptor) Flush() {
	if flusher, ok := si.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker when the underlying writer does.
func (si *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := si.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

// Push implements http.Pusher when the underlying writer does.
func (si *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := si.ResponseWriter.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}
