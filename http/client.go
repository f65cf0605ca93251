package http

import (
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/balance"
	"github.com/zeroc-labs/x402-go/encoding"
	"github.com/zeroc-labs/x402-go/http/internal/helpers"
	"github.com/zeroc-labs/x402-go/logger"
	"github.com/zeroc-labs/x402-go/metrics"
)

// Client is an HTTP client that pays for 402-gated resources
// transparently: callers use it like *http.Client and payment challenges
// are answered behind the scenes, at most one payment per request.
type Client struct {
	httpClient *http.Client
	transport  *PaymentTransport
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithSigners sets the payment signers the client may pay with. At least
// one signer is required.
func WithSigners(signers ...x402.Signer) ClientOption {
	return func(c *Client) error {
		if len(signers) == 0 {
			return fmt.Errorf("%w: at least one signer required", x402.ErrInvalidConfig)
		}
		c.transport.signers = append(c.transport.signers, signers...)
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its transport
// becomes the base the payment transport delegates to.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		if client == nil {
			return fmt.Errorf("%w: nil HTTP client", x402.ErrInvalidConfig)
		}
		c.httpClient = client
		if client.Transport != nil {
			c.transport.base = client.Transport
		}
		return nil
	}
}

// WithSelector replaces the payment selection strategy.
func WithSelector(selector x402.PaymentSelector) ClientOption {
	return func(c *Client) error {
		if selector == nil {
			return fmt.Errorf("%w: nil selector", x402.ErrInvalidConfig)
		}
		c.transport.selector = selector
		return nil
	}
}

// WithMaxPayment caps what any single request may cost, in atomic units.
// A challenge demanding more fails with ErrAmountExceeded before any
// signing happens.
func WithMaxPayment(max *big.Int) ClientOption {
	return func(c *Client) error {
		if max == nil || max.Sign() <= 0 {
			return fmt.Errorf("%w: max payment must be positive", x402.ErrInvalidConfig)
		}
		c.transport.maxPayment = new(big.Int).Set(max)
		return nil
	}
}

// WithBalanceOracle registers a balance oracle for a network, enabling
// the pre-signing balance check for challenges on that network.
func WithBalanceOracle(network string, oracle balance.Oracle) ClientOption {
	return func(c *Client) error {
		if oracle == nil {
			return fmt.Errorf("%w: nil balance oracle", x402.ErrInvalidConfig)
		}
		c.transport.balances[network] = oracle
		return nil
	}
}

// WithAbortOnUnknownBalance makes an inconclusive balance check abort the
// payment instead of proceeding optimistically.
func WithAbortOnUnknownBalance() ClientOption {
	return func(c *Client) error {
		c.transport.abortOnUnknown = true
		return nil
	}
}

// WithPaymentCallback registers a callback for payment lifecycle events.
func WithPaymentCallback(callback x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		c.transport.callback = callback
		return nil
	}
}

// WithClientLogger sets the client's logger.
func WithClientLogger(log logger.Logger) ClientOption {
	return func(c *Client) error {
		if log != nil {
			c.transport.log = log
		}
		return nil
	}
}

// WithClientMetrics sets the client's metrics recorder.
func WithClientMetrics(rec metrics.Recorder) ClientOption {
	return func(c *Client) error {
		if rec != nil {
			c.transport.rec = rec
		}
		return nil
	}
}

// NewClient creates a paying HTTP client.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
		transport: &PaymentTransport{
			base:     http.DefaultTransport,
			selector: x402.NewDefaultPaymentSelector(),
			balances: make(map[string]balance.Oracle),
			log:      logger.NewNop(),
			rec:      metrics.NewNop(),
		},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if len(c.transport.signers) == 0 {
		return nil, fmt.Errorf("%w: no signers configured", x402.ErrInvalidConfig)
	}

	c.httpClient.Transport = c.transport
	return c, nil
}

// Do executes the request, paying for it if challenged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Get issues a GET to the given URL, paying for it if challenged.
func (c *Client) Get(url string) (*http.Response, error) {
	return c.httpClient.Get(url)
}

// Post issues a POST with the given body, paying for it if challenged.
func (c *Client) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return c.httpClient.Post(url, contentType, body)
}

// PostString issues a POST with a string body.
func (c *Client) PostString(url, contentType, body string) (*http.Response, error) {
	return c.Post(url, contentType, strings.NewReader(body))
}

// StandardClient returns the wrapped *http.Client for libraries that
// demand one.
func (c *Client) StandardClient() *http.Client {
	return c.httpClient
}

// GetSettlement extracts the settlement receipt from a paid response, or
// nil when the response carries none.
func GetSettlement(resp *http.Response) (*x402.SettlementResponse, error) {
	encoded := resp.Header.Get(helpers.PaymentResponseHeader)
	if encoded == "" {
		return nil, nil
	}
	settlement, err := encoding.DecodeSettlement(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode settlement header: %w", err)
	}
	return &settlement, nil
}
