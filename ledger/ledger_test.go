package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	x402 "github.com/zeroc-labs/x402-go"
)

func testPayment(nonce string) *x402.PaymentPayload {
	return &x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "solana",
		Payload: x402.SVMPayload{
			Transaction: "dGVzdA==",
			Claim: x402.PaymentClaim{
				Payer:  "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
				PayTo:  "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy",
				Amount: "10000",
				Asset:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				Nonce:  nonce,
			},
		},
	}
}

func TestKeyForStableAndDistinct(t *testing.T) {
	k1, err := KeyFor(testPayment("a"))
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	k2, err := KeyFor(testPayment("a"))
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	k3, err := KeyFor(testPayment("b"))
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}

	if k1 != k2 {
		t.Errorf("identical proofs produced different keys: %s vs %s", k1, k2)
	}
	if k1 == k3 {
		t.Error("distinct proofs produced the same key")
	}
	if len(k1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k1))
	}
}

func TestBeginAdmitsOnceThenCaches(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()

	first, err := l.Begin(ctx, "proof-1")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if first.Status != StatusAdmitted {
		t.Fatalf("first Begin status = %v, want StatusAdmitted", first.Status)
	}

	second, err := l.Begin(ctx, "proof-1")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if second.Status != StatusInFlight {
		t.Fatalf("second Begin status = %v, want StatusInFlight", second.Status)
	}

	settlement := &x402.SettlementResponse{Success: true, Transaction: "tx-1", Network: "solana"}
	if err := l.Complete(ctx, "proof-1", settlement); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	select {
	case <-second.Done:
	case <-time.After(time.Second):
		t.Fatal("Done channel not closed after Complete")
	}

	third, err := l.Begin(ctx, "proof-1")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if third.Status != StatusCached {
		t.Fatalf("third Begin status = %v, want StatusCached", third.Status)
	}
	if !third.Record.Settled() || third.Record.Settlement.Transaction != "tx-1" {
		t.Errorf("cached record = %+v, want settled tx-1", third.Record)
	}
}

func TestConcurrentBeginAdmitsExactlyOne(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()

	const workers = 32
	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := l.Begin(ctx, "shared-proof")
			if err != nil {
				t.Errorf("Begin failed: %v", err)
				return
			}
			if result.Status == StatusAdmitted {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 1 {
		t.Errorf("admitted %d callers, want exactly 1", count)
	}
}

func TestFailBelowBudgetAllowsRetry(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger(WithMaxAttempts(3))

	for attempt := 0; attempt < 2; attempt++ {
		result, err := l.Begin(ctx, "flaky-proof")
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if result.Status != StatusAdmitted {
			t.Fatalf("attempt %d status = %v, want StatusAdmitted", attempt, result.Status)
		}
		if err := l.Fail(ctx, "flaky-proof", "oracle timeout"); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
	}

	// Third failure hits the attempt budget and becomes terminal.
	result, err := l.Begin(ctx, "flaky-proof")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if result.Status != StatusAdmitted {
		t.Fatalf("status = %v, want StatusAdmitted", result.Status)
	}
	if err := l.Fail(ctx, "flaky-proof", "oracle timeout"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	final, err := l.Begin(ctx, "flaky-proof")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if final.Status != StatusCached {
		t.Fatalf("status after terminal failure = %v, want StatusCached", final.Status)
	}
	if final.Record.Settled() {
		t.Error("terminal failure record reports settled")
	}
	if final.Record.FailureReason != "oracle timeout" {
		t.Errorf("FailureReason = %q, want %q", final.Record.FailureReason, "oracle timeout")
	}
	if final.Record.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", final.Record.Attempts)
	}
}

func TestWaitTimesOutWithContext(t *testing.T) {
	l := NewInMemoryLedger()

	result, err := l.Begin(context.Background(), "slow-proof")
	if err != nil || result.Status != StatusAdmitted {
		t.Fatalf("Begin = %+v, %v", result, err)
	}

	waiter, err := l.Begin(context.Background(), "slow-proof")
	if err != nil || waiter.Status != StatusInFlight {
		t.Fatalf("waiter Begin = %+v, %v", waiter, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := Wait(ctx, l, "slow-proof", waiter.Done); err != context.DeadlineExceeded {
		t.Errorf("Wait error = %v, want context.DeadlineExceeded", err)
	}
}
