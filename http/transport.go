package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/balance"
	"github.com/zeroc-labs/x402-go/encoding"
	"github.com/zeroc-labs/x402-go/http/internal/helpers"
	"github.com/zeroc-labs/x402-go/logger"
	"github.com/zeroc-labs/x402-go/metrics"
	"github.com/zeroc-labs/x402-go/validation"
)

// PaymentTransport is an http.RoundTripper that answers 402 challenges
// with signed payment proofs. Per request it makes at most one unpaid
// attempt and one paid retry; a server that rejects the paid retry with
// another 402 is a protocol failure, not an invitation to pay again.
type PaymentTransport struct {
	base           http.RoundTripper
	signers        []x402.Signer
	selector       x402.PaymentSelector
	maxPayment     *big.Int
	balances       map[string]balance.Oracle
	abortOnUnknown bool
	callback       x402.PaymentCallback
	log            logger.Logger
	rec            metrics.Recorder
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	bodyCopy, err := bufferRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	requirements, err := parseChallenge(resp)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	header, requirement, signer, err := t.buildPayment(req, requirements)
	if err != nil {
		t.emit(failureEvent(req.URL.String(), requirement, err, time.Since(start)))
		return nil, err
	}

	t.emit(attemptEvent(req.URL.String(), requirement))

	retryReq := req.Clone(req.Context())
	if bodyCopy != nil {
		retryReq.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		retryReq.ContentLength = int64(len(bodyCopy))
	}
	retryReq.Header.Set(helpers.PaymentHeader, header)

	paidResp, err := t.base.RoundTrip(retryReq)
	if err != nil {
		t.emit(failureEvent(req.URL.String(), requirement, err, time.Since(start)))
		return nil, err
	}

	if paidResp.StatusCode == http.StatusPaymentRequired {
		drain(paidResp)
		protocolErr := x402.NewPaymentError(x402.ErrCodePaymentNotAccepted,
			"server demanded payment again after payment was presented",
			x402.ErrPaymentNotAccepted).
			WithDetails("url", req.URL.String())
		t.log.Error("paid retry drew another 402",
			logger.F("url", req.URL.String()),
			logger.F("network", requirement.Network))
		t.rec.RecordEvent("payment_not_accepted", requirement.Network, requirement.Scheme)
		t.emit(failureEvent(req.URL.String(), requirement, protocolErr, time.Since(start)))
		return nil, protocolErr
	}

	t.rec.RecordEvent("paid", requirement.Network, requirement.Scheme)
	t.rec.RecordLatency("round_trip", requirement.Network, time.Since(start))
	t.emit(successEvent(req.URL.String(), requirement, signer, paidResp, time.Since(start)))
	return paidResp, nil
}

// buildPayment selects a signer, runs the preflight checks, and signs.
// Nothing here has side effects beyond local computation, so any failure
// leaves the payer's funds untouched.
func (t *PaymentTransport) buildPayment(req *http.Request, requirements []x402.PaymentRequirement) (string, *x402.PaymentRequirement, x402.Signer, error) {
	signer, requirement, err := t.selector.Select(requirements, t.signers)
	if err != nil {
		return "", nil, nil, err
	}

	required, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok {
		return "", requirement, nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements,
			fmt.Sprintf("unparseable amount %q in challenge", requirement.MaxAmountRequired),
			x402.ErrInvalidRequirements)
	}

	if t.maxPayment != nil && required.Cmp(t.maxPayment) > 0 {
		return "", requirement, nil, x402.NewPaymentError(x402.ErrCodeAmountExceeded,
			fmt.Sprintf("challenge demands %s, spending cap is %s", required, t.maxPayment),
			x402.ErrAmountExceeded).
			WithDetails("required", required.String()).
			WithDetails("cap", t.maxPayment.String())
	}

	if err := t.checkBalance(req, signer, requirement, required); err != nil {
		return "", requirement, nil, err
	}

	payment, err := signer.Sign(requirement)
	if err != nil {
		return "", requirement, nil, x402.NewPaymentError(x402.ErrCodeSigningFailed,
			"failed to sign payment", err)
	}

	header, err := encoding.EncodePayment(*payment)
	if err != nil {
		return "", requirement, nil, fmt.Errorf("failed to encode payment header: %w", err)
	}
	return header, requirement, signer, nil
}

// checkBalance runs the tri-state balance preflight when an oracle is
// registered for the challenge's network.
func (t *PaymentTransport) checkBalance(req *http.Request, signer x402.Signer, requirement *x402.PaymentRequirement, required *big.Int) error {
	oracle, ok := t.balances[requirement.Network]
	if !ok {
		return nil
	}

	funds := oracle.Check(req.Context(), signer.Address(), requirement.Asset, required)
	switch funds.State {
	case balance.StateInsufficient:
		return x402.NewPaymentError(x402.ErrCodeInsufficientBalance,
			fmt.Sprintf("balance %s cannot cover %s", funds.Balance, required),
			x402.ErrInsufficientBalance).
			WithDetails("balance", funds.Balance.String()).
			WithDetails("required", required.String())

	case balance.StateUnknown:
		if t.abortOnUnknown {
			return x402.NewPaymentError(x402.ErrCodeInsufficientBalance,
				"balance check inconclusive", x402.ErrBalanceUnknown)
		}
		t.log.Warn("balance check inconclusive, proceeding",
			logger.F("network", requirement.Network),
			logger.F("error", errString(funds.Err)))
	}
	return nil
}

// parseChallenge reads and validates the 402 response body. The response
// body is fully consumed.
func parseChallenge(resp *http.Response) ([]x402.PaymentRequirement, error) {
	defer drain(resp)

	var challenge x402.PaymentRequirementsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("%w: unparseable 402 body: %v", x402.ErrInvalidRequirements, err)
	}
	if challenge.X402Version != 1 {
		return nil, fmt.Errorf("%w: version %d", x402.ErrUnsupportedVersion, challenge.X402Version)
	}
	if len(challenge.Accepts) == 0 {
		return nil, fmt.Errorf("%w: challenge offers no payment options", x402.ErrInvalidRequirements)
	}

	valid := make([]x402.PaymentRequirement, 0, len(challenge.Accepts))
	for i := range challenge.Accepts {
		if err := validation.ValidatePaymentRequirement(&challenge.Accepts[i]); err == nil {
			valid = append(valid, challenge.Accepts[i])
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid payment options in challenge", x402.ErrInvalidRequirements)
	}
	return valid, nil
}

// bufferRequestBody captures the request body so the paid retry can
// resend it. Requests with GetBody (most stdlib-constructed ones) are
// left alone.
func bufferRequestBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return io.ReadAll(body)
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

func (t *PaymentTransport) emit(event x402.PaymentEvent) {
	if t.callback != nil {
		t.callback(event)
	}
}

func attemptEvent(url string, requirement *x402.PaymentRequirement) x402.PaymentEvent {
	return x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		Timestamp: time.Now(),
		URL:       url,
		Amount:    requirement.MaxAmountRequired,
		Asset:     requirement.Asset,
		Network:   requirement.Network,
		Scheme:    requirement.Scheme,
		Recipient: requirement.PayTo,
	}
}

func successEvent(url string, requirement *x402.PaymentRequirement, signer x402.Signer, resp *http.Response, duration time.Duration) x402.PaymentEvent {
	event := x402.PaymentEvent{
		Type:      x402.PaymentEventSuccess,
		Timestamp: time.Now(),
		URL:       url,
		Amount:    requirement.MaxAmountRequired,
		Asset:     requirement.Asset,
		Network:   requirement.Network,
		Scheme:    requirement.Scheme,
		Recipient: requirement.PayTo,
		Payer:     signer.Address(),
		Duration:  duration,
	}
	if settlement, err := GetSettlement(resp); err == nil && settlement != nil {
		event.Transaction = settlement.Transaction
		if settlement.Payer != "" {
			event.Payer = settlement.Payer
		}
	}
	return event
}

func failureEvent(url string, requirement *x402.PaymentRequirement, err error, duration time.Duration) x402.PaymentEvent {
	event := x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		Timestamp: time.Now(),
		URL:       url,
		Error:     err,
		Duration:  duration,
	}
	if requirement != nil {
		event.Amount = requirement.MaxAmountRequired
		event.Asset = requirement.Asset
		event.Network = requirement.Network
		event.Scheme = requirement.Scheme
		event.Recipient = requirement.PayTo
	}
	return event
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
