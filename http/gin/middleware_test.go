package gin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/encoding"
	"github.com/zeroc-labs/x402-go/facilitator"
	xhttp "github.com/zeroc-labs/x402-go/http"
)

const (
	testMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testTreasury = "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy"
	testPayer    = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

type stubOracle struct {
	verifyCalls int32
	settleCalls int32
	settleErr   error
}

func (o *stubOracle) Verify(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	atomic.AddInt32(&o.verifyCalls, 1)
	return &facilitator.VerifyResponse{IsValid: true, Payer: testPayer}, nil
}

func (o *stubOracle) Settle(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	atomic.AddInt32(&o.settleCalls, 1)
	if o.settleErr != nil {
		return nil, o.settleErr
	}
	return &x402.SettlementResponse{Success: true, Transaction: "tx-gin", Network: "solana", Payer: testPayer}, nil
}

func (o *stubOracle) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{}, nil
}

func newEngine(t *testing.T, oracle facilitator.Oracle) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gate, err := xhttp.NewPaymentGate(x402.GateConfig{
		Network:       "solana",
		Asset:         testMint,
		AssetDecimals: 6,
		Amount:        "10000",
		PayTo:         testTreasury,
		Description:   "test resource",
	}, oracle)
	if err != nil {
		t.Fatalf("NewPaymentGate failed: %v", err)
	}

	engine := gin.New()
	engine.GET("/paid", Middleware(gate), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"payer": Payer(c)})
	})
	engine.GET("/broken", Middleware(gate), func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad input"})
	})
	return engine
}

func paidHeader(t *testing.T, amount string) string {
	t.Helper()
	header, err := encoding.EncodePayment(x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "solana",
		Payload: x402.SVMPayload{
			Transaction: "dGVzdCB0eA==",
			Claim: x402.PaymentClaim{
				Payer:    testPayer,
				PayTo:    testTreasury,
				Amount:   amount,
				Asset:    testMint,
				IssuedAt: time.Now().Unix(),
			},
		},
	})
	if err != nil {
		t.Fatalf("failed to encode payment: %v", err)
	}
	return header
}

func TestGinChallengeWithoutPayment(t *testing.T) {
	engine := newEngine(t, &stubOracle{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paid", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var challenge x402.PaymentRequirementsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("failed to decode challenge: %v", err)
	}
	if len(challenge.Accepts) != 1 || challenge.Accepts[0].MaxAmountRequired != "10000" {
		t.Errorf("challenge accepts = %+v, unexpected", challenge.Accepts)
	}
}

func TestGinAcceptsPayment(t *testing.T) {
	oracle := &stubOracle{}
	engine := newEngine(t, oracle)

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("X-PAYMENT", paidHeader(t, "10000"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["payer"] != testPayer {
		t.Errorf("payer = %q, want %q", body["payer"], testPayer)
	}

	encoded := rec.Header().Get("X-PAYMENT-RESPONSE")
	if encoded == "" {
		t.Fatal("missing settlement receipt header")
	}
	settlement, err := encoding.DecodeSettlement(encoded)
	if err != nil {
		t.Fatalf("failed to decode receipt: %v", err)
	}
	if settlement.Transaction != "tx-gin" {
		t.Errorf("receipt transaction = %q, want tx-gin", settlement.Transaction)
	}
	if calls := atomic.LoadInt32(&oracle.settleCalls); calls != 1 {
		t.Errorf("settle calls = %d, want 1", calls)
	}
}

func TestGinSettlementFailureDiscardsPayload(t *testing.T) {
	oracle := &stubOracle{settleErr: errors.New("authorization already used")}
	engine := newEngine(t, oracle)

	req := httptest.NewRequest(http.MethodGet, "/paid", nil)
	req.Header.Set("X-PAYMENT", paidHeader(t, "10000"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["payer"] != "" {
		t.Error("handler payload leaked after failed settlement")
	}
}

func TestGinHandlerErrorSkipsSettlement(t *testing.T) {
	oracle := &stubOracle{}
	engine := newEngine(t, oracle)

	req := httptest.NewRequest(http.MethodGet, "/broken", nil)
	req.Header.Set("X-PAYMENT", paidHeader(t, "10000"))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if calls := atomic.LoadInt32(&oracle.settleCalls); calls != 0 {
		t.Errorf("settle calls = %d, want 0 for failed handler", calls)
	}
}
