// Package gin adapts the payment gate to the Gin framework. Gin buffers
// response headers until the first body write, so the settlement point is
// intercepted on the gin.ResponseWriter rather than on a plain
// http.ResponseWriter.
package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/encoding"
	xhttp "github.com/zeroc-labs/x402-go/http"
	"github.com/zeroc-labs/x402-go/http/internal/helpers"
)

// PayerKey is the gin context key holding the verified paying address.
const PayerKey = "x402.payer"

// Payer returns the verified paying address for a payment-gated request.
func Payer(c *gin.Context) string {
	value, _ := c.Get(PayerKey)
	payer, _ := value.(string)
	return payer
}

// Middleware enforces payment on the routes it is attached to.
func Middleware(gate *xhttp.PaymentGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := helpers.ResourceURL(c.Request)

		requirement, err := gate.BuildRequirement(resource)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "payment configuration error"})
			return
		}

		payment, err := helpers.ParsePaymentFromRequest(c.Request)
		if err != nil {
			if !errors.Is(err, x402.ErrNoPayment) && gate.StrictHeader() {
				c.AbortWithStatusJSON(http.StatusBadRequest,
					gin.H{"error": "malformed payment header"})
				return
			}
			message := ""
			if !errors.Is(err, x402.ErrNoPayment) {
				message = err.Error()
			}
			abortWithChallenge(c, message, requirement)
			return
		}

		result, err := gate.VerifyPayment(c.Request.Context(), payment, &requirement)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway,
				gin.H{"error": "payment verification unavailable"})
			return
		}
		if !result.Valid {
			abortWithChallenge(c, "payment rejected: "+string(result.Reason), requirement)
			return
		}

		c.Set(PayerKey, result.Payer)

		writer := &settlementWriter{
			ResponseWriter: c.Writer,
			settle: func() (*x402.SettlementResponse, error) {
				return gate.SettlePayment(c.Request.Context(), payment, &requirement)
			},
		}
		c.Writer = writer
		c.Next()
		writer.WriteHeaderNow()
	}
}

func abortWithChallenge(c *gin.Context, message string, requirement x402.PaymentRequirement) {
	if message == "" {
		message = "Payment required"
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequirementsResponse{
		X402Version: 1,
		Error:       message,
		Accepts:     []x402.PaymentRequirement{requirement},
	})
}

// settlementWriter intercepts the moment gin flushes the response and
// settles first. A failed settlement replaces the handler's response with
// a 402 and swallows the payload.
type settlementWriter struct {
	gin.ResponseWriter
	settle func() (*x402.SettlementResponse, error)

	done    bool
	discard bool
}

// ensureSettled runs settlement once, before anything reaches the wire.
func (w *settlementWriter) ensureSettled() {
	if w.done {
		return
	}
	w.done = true

	if w.Status() >= http.StatusBadRequest {
		return
	}

	settlement, err := w.settle()
	if err != nil {
		w.discard = true
		w.Header().Set("Content-Type", "application/json")
		w.ResponseWriter.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.ResponseWriter.WriteString(`{"error":"payment settlement failed"}`)
		return
	}

	if encoded, err := encoding.EncodeSettlement(*settlement); err == nil {
		w.Header().Set(helpers.PaymentResponseHeader, encoded)
	}
}

func (w *settlementWriter) Write(b []byte) (int, error) {
	w.ensureSettled()
	if w.discard {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *settlementWriter) WriteString(s string) (int, error) {
	w.ensureSettled()
	if w.discard {
		return len(s), nil
	}
	return w.ResponseWriter.WriteString(s)
}

func (w *settlementWriter) WriteHeaderNow() {
	w.ensureSettled()
	if !w.discard {
		w.ResponseWriter.WriteHeaderNow()
	}
}
