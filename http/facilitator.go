// Package http provides the HTTP faces of the payment protocol: the
// server-side payment gate middleware, the client-side paying transport,
// and the HTTP client for ledger oracle (facilitator) services.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/facilitator"
)

// DefaultFacilitatorURL is the public facilitator used when none is
// configured.
const DefaultFacilitatorURL = "https://facilitator.payai.network"

// AuthorizationProvider supplies fresh Authorization header values for
// facilitator requests. Implementations that mint short-lived tokens (JWT)
// are called once per request.
type AuthorizationProvider interface {
	GetAuthorizationHeader(ctx context.Context, method, requestURL string) (string, error)
}

// FacilitatorClient implements facilitator.Oracle against a remote
// facilitator's HTTP API.
type FacilitatorClient struct {
	baseURL    string
	httpClient *http.Client
	auth       AuthorizationProvider
}

// FacilitatorOption configures a FacilitatorClient.
type FacilitatorOption func(*FacilitatorClient)

// WithFacilitatorHTTPClient replaces the underlying HTTP client.
func WithFacilitatorHTTPClient(client *http.Client) FacilitatorOption {
	return func(f *FacilitatorClient) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithAuthorization supplies Authorization headers for facilitators that
// require authentication.
func WithAuthorization(provider AuthorizationProvider) FacilitatorOption {
	return func(f *FacilitatorClient) { f.auth = provider }
}

// NewFacilitatorClient creates a client for the facilitator at baseURL.
// An empty baseURL selects DefaultFacilitatorURL.
func NewFacilitatorClient(baseURL string, opts ...FacilitatorOption) *FacilitatorClient {
	if baseURL == "" {
		baseURL = DefaultFacilitatorURL
	}
	f := &FacilitatorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// facilitatorRequest is the request body for /verify and /settle.
type facilitatorRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements *x402.PaymentRequirement `json:"paymentRequirements"`
}

// Verify implements facilitator.Oracle.
func (f *FacilitatorClient) Verify(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	var response facilitator.VerifyResponse
	if err := f.post(ctx, "/verify", payment, requirement, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Settle implements facilitator.Oracle.
func (f *FacilitatorClient) Settle(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	var response x402.SettlementResponse
	if err := f.post(ctx, "/settle", payment, requirement, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Supported implements facilitator.Oracle.
func (f *FacilitatorClient) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := f.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrOracleUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, f.statusError(resp)
	}

	var response facilitator.SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &response, nil
}

func (f *FacilitatorClient) post(ctx context.Context, path string, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement, out interface{}) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         payment.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := f.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrOracleUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return f.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (f *FacilitatorClient) authorize(ctx context.Context, req *http.Request) error {
	if f.auth == nil {
		return nil
	}
	header, err := f.auth.GetAuthorizationHeader(ctx, req.Method, req.URL.String())
	if err != nil {
		return fmt.Errorf("failed to build authorization header: %w", err)
	}
	req.Header.Set("Authorization", header)
	return nil
}

func (f *FacilitatorClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: facilitator returned %d: %s",
			x402.ErrOracleUnreachable, resp.StatusCode, bytes.TrimSpace(body))
	}
	return fmt.Errorf("facilitator returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}
