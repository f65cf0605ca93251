// Package ledger provides the settlement ledger: the record of which
// payment proofs have been settled, are being settled, or have failed
// terminally. It is the mechanism that makes settlement exactly-once in
// the presence of request retries and concurrent duplicates.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	x402 "github.com/zeroc-labs/x402-go"
)

// Status classifies what the ledger knows about a proof when a request
// tries to settle it.
type Status int

const (
	// StatusAdmitted means this caller holds the settlement slot and must
	// finish with Complete or Fail.
	StatusAdmitted Status = iota

	// StatusInFlight means another caller is settling the same proof right
	// now; wait on the Done channel.
	StatusInFlight

	// StatusCached means the proof already has a recorded outcome.
	StatusCached
)

// Record is the durable outcome for one proof. Records are never deleted;
// a proof that settled once stays settled.
type Record struct {
	// Settlement is the receipt, present when the proof settled successfully.
	Settlement *x402.SettlementResponse

	// FailureReason is set when the proof failed terminally.
	FailureReason string

	// Attempts counts how many settlement attempts the proof has consumed.
	Attempts int

	// CompletedAt is when the outcome became final.
	CompletedAt time.Time
}

// Settled reports whether the record holds a successful settlement.
func (r *Record) Settled() bool {
	return r.Settlement != nil && r.Settlement.Success
}

// BeginResult is the outcome of trying to claim the settlement slot for a
// proof.
type BeginResult struct {
	Status Status

	// Record is set when Status is StatusCached.
	Record *Record

	// Done is set when Status is StatusInFlight; it closes when the holder
	// finishes.
	Done <-chan struct{}
}

// Ledger tracks settlement outcomes per proof key. Implementations must
// make Begin atomic: of N concurrent callers with the same key, exactly
// one is admitted.
type Ledger interface {
	// Begin atomically claims the settlement slot for key, or reports the
	// existing outcome or in-flight holder.
	Begin(ctx context.Context, key string) (BeginResult, error)

	// Complete records a successful settlement and releases any waiters.
	Complete(ctx context.Context, key string, settlement *x402.SettlementResponse) error

	// Fail records a failed attempt and releases any waiters. When the
	// attempt budget is exhausted the failure becomes terminal and cached;
	// otherwise the key returns to the unclaimed state so a later request
	// may try again.
	Fail(ctx context.Context, key string, reason string) error

	// Get returns the recorded outcome for key, or nil if none exists.
	Get(ctx context.Context, key string) (*Record, error)
}

// KeyFor derives the ledger key for a payment proof: the SHA-256 of its
// canonical JSON encoding. Identical proofs map to identical keys, so a
// replayed X-PAYMENT header lands on the same record.
func KeyFor(payment *x402.PaymentPayload) (string, error) {
	raw, err := json.Marshal(payment)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// InMemoryLedger is a mutex-guarded in-process Ledger suitable for a
// single server instance. Multi-instance deployments need a shared
// implementation with the same atomicity guarantees.
type InMemoryLedger struct {
	mu          sync.Mutex
	records     map[string]*Record
	inFlight    map[string]chan struct{}
	attempts    map[string]int
	maxAttempts int
}

// InMemoryOption configures an InMemoryLedger.
type InMemoryOption func(*InMemoryLedger)

// WithMaxAttempts sets how many failed settlement attempts a proof may
// consume before the failure becomes terminal. Default is 3.
func WithMaxAttempts(n int) InMemoryOption {
	return func(l *InMemoryLedger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// NewInMemoryLedger creates an empty in-memory settlement ledger.
func NewInMemoryLedger(opts ...InMemoryOption) *InMemoryLedger {
	l := &InMemoryLedger{
		records:     make(map[string]*Record),
		inFlight:    make(map[string]chan struct{}),
		attempts:    make(map[string]int),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Begin implements Ledger.
func (l *InMemoryLedger) Begin(ctx context.Context, key string) (BeginResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record, ok := l.records[key]; ok {
		return BeginResult{Status: StatusCached, Record: record}, nil
	}
	if done, ok := l.inFlight[key]; ok {
		return BeginResult{Status: StatusInFlight, Done: done}, nil
	}

	done := make(chan struct{})
	l.inFlight[key] = done
	return BeginResult{Status: StatusAdmitted}, nil
}

// Complete implements Ledger.
func (l *InMemoryLedger) Complete(ctx context.Context, key string, settlement *x402.SettlementResponse) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[key] = &Record{
		Settlement:  settlement,
		Attempts:    l.attempts[key] + 1,
		CompletedAt: time.Now(),
	}
	delete(l.attempts, key)
	l.release(key)
	return nil
}

// Fail implements Ledger.
func (l *InMemoryLedger) Fail(ctx context.Context, key string, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempts := l.attempts[key] + 1
	if attempts >= l.maxAttempts {
		l.records[key] = &Record{
			FailureReason: reason,
			Attempts:      attempts,
			CompletedAt:   time.Now(),
		}
		delete(l.attempts, key)
	} else {
		l.attempts[key] = attempts
	}
	l.release(key)
	return nil
}

// Get implements Ledger.
func (l *InMemoryLedger) Get(ctx context.Context, key string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[key], nil
}

// release closes and removes the in-flight channel for key. Caller holds
// the mutex.
func (l *InMemoryLedger) release(key string) {
	if done, ok := l.inFlight[key]; ok {
		close(done)
		delete(l.inFlight, key)
	}
}

// Wait blocks until the in-flight settlement signaled by done finishes,
// then returns the recorded outcome. Returns ctx.Err() if the context
// expires first. A nil record after the wait means the holder failed with
// attempts remaining; the caller may re-enter Begin.
func Wait(ctx context.Context, l Ledger, key string, done <-chan struct{}) (*Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	return l.Get(ctx, key)
}
