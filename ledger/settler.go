package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/facilitator"
	"github.com/zeroc-labs/x402-go/logger"
	"github.com/zeroc-labs/x402-go/metrics"
	"github.com/zeroc-labs/x402-go/retry"
)

// Settler finalizes verified payments through the ledger oracle, at most
// once per proof. It is the only code that calls Oracle.Settle; everything
// else goes through the ledger's idempotency gate first.
type Settler struct {
	oracle  facilitator.Oracle
	ledger  Ledger
	retry   retry.Config
	timeout time.Duration
	log     logger.Logger
	rec     metrics.Recorder
}

// SettlerOption configures a Settler.
type SettlerOption func(*Settler)

// WithRetryConfig overrides the retry policy for oracle settlement calls.
func WithRetryConfig(config retry.Config) SettlerOption {
	return func(s *Settler) { s.retry = config }
}

// WithSettleTimeout bounds each complete settlement attempt cycle.
func WithSettleTimeout(d time.Duration) SettlerOption {
	return func(s *Settler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the settler's logger.
func WithLogger(log logger.Logger) SettlerOption {
	return func(s *Settler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the settler's metrics recorder.
func WithMetrics(rec metrics.Recorder) SettlerOption {
	return func(s *Settler) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// NewSettler creates a Settler backed by the given oracle and ledger.
func NewSettler(oracle facilitator.Oracle, l Ledger, opts ...SettlerOption) *Settler {
	s := &Settler{
		oracle:  oracle,
		ledger:  l,
		retry:   retry.DefaultConfig,
		timeout: x402.DefaultTimeouts.SettleTimeout,
		log:     logger.NewNop(),
		rec:     metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle settles the payment proof exactly once and returns its receipt.
//
// A proof that was already settled returns the original receipt without
// touching the oracle. A proof another request is settling right now waits
// for that outcome, bounded by ctx. A proof that failed terminally returns
// ErrSettlementFailed with the recorded reason.
func (s *Settler) Settle(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	key, err := KeyFor(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to derive settlement key: %w", err)
	}

	for {
		begin, err := s.ledger.Begin(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("settlement ledger error: %w", err)
		}

		switch begin.Status {
		case StatusCached:
			return s.fromRecord(payment, key, begin.Record)

		case StatusInFlight:
			s.log.Debug("settlement in flight, waiting", logger.F("proofKey", key))
			record, err := Wait(ctx, s.ledger, key, begin.Done)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", x402.ErrSettlementInProgress, err)
			}
			if record == nil {
				// Holder failed with attempts remaining; contend again.
				continue
			}
			return s.fromRecord(payment, key, record)

		case StatusAdmitted:
			return s.settleAdmitted(ctx, key, payment, requirement)
		}
	}
}

// fromRecord converts a cached ledger record into a settlement result.
func (s *Settler) fromRecord(payment *x402.PaymentPayload, key string, record *Record) (*x402.SettlementResponse, error) {
	if record.Settled() {
		s.log.Debug("settlement replayed from ledger",
			logger.F("proofKey", key),
			logger.F("transaction", record.Settlement.Transaction))
		s.rec.RecordEvent("settle_replayed", payment.Network, payment.Scheme)
		return record.Settlement, nil
	}
	return nil, x402.NewPaymentError(x402.ErrCodeNetworkError,
		fmt.Sprintf("payment already failed settlement: %s", record.FailureReason),
		x402.ErrSettlementFailed).
		WithDetails("proofKey", key).
		WithDetails("attempts", record.Attempts)
}

// settleAdmitted runs the oracle settlement for a freshly claimed slot.
// The claimed slot is always released through Complete or Fail.
func (s *Settler) settleAdmitted(ctx context.Context, key string, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	settleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	settlement, err := retry.WithRetry(settleCtx, s.retry,
		func(ctx context.Context) (*x402.SettlementResponse, error) {
			return s.oracle.Settle(ctx, payment, requirement)
		}, isRetryable)
	s.rec.RecordLatency("settle", payment.Network, time.Since(start))

	if err != nil {
		s.log.Error("settlement failed",
			logger.F("proofKey", key),
			logger.F("error", err.Error()))
		s.rec.RecordEvent("settle_failed", payment.Network, payment.Scheme)
		if failErr := s.ledger.Fail(ctx, key, err.Error()); failErr != nil {
			s.log.Error("failed to record settlement failure", logger.F("error", failErr.Error()))
		}
		return nil, fmt.Errorf("%w: %v", x402.ErrSettlementFailed, err)
	}

	if !settlement.Success {
		s.log.Warn("oracle rejected settlement",
			logger.F("proofKey", key),
			logger.F("reason", settlement.ErrorReason))
		s.rec.RecordEvent("settle_rejected", payment.Network, payment.Scheme)
		if failErr := s.ledger.Fail(ctx, key, settlement.ErrorReason); failErr != nil {
			s.log.Error("failed to record settlement rejection", logger.F("error", failErr.Error()))
		}
		return nil, x402.NewPaymentError(x402.ErrCodeNetworkError,
			fmt.Sprintf("settlement rejected: %s", settlement.ErrorReason),
			x402.ErrSettlementFailed)
	}

	if err := s.ledger.Complete(ctx, key, settlement); err != nil {
		return nil, fmt.Errorf("failed to record settlement: %w", err)
	}

	s.log.Info("payment settled",
		logger.F("proofKey", key),
		logger.F("network", settlement.Network),
		logger.F("payer", settlement.Payer),
		logger.F("transaction", settlement.Transaction))
	s.rec.RecordEvent("settled", payment.Network, payment.Scheme)
	return settlement, nil
}

// isRetryable reports whether a settlement error is transient. Oracle
// rejections come back as successful calls with Success false, so any
// transport-level failure here is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, x402.ErrOracleUnreachable) ||
		errors.Is(err, context.DeadlineExceeded)
}
