package http

import (
	"context"
	"net/http"
)

type contextKey int

const payerContextKey contextKey = iota

// withPayer records the verified paying address in the request context.
func withPayer(ctx context.Context, payer string) context.Context {
	return context.WithValue(ctx, payerContextKey, payer)
}

// PayerFromContext returns the verified paying address for a request that
// passed the payment gate, or "" when the request was not payment-gated.
func PayerFromContext(ctx context.Context) string {
	payer, _ := ctx.Value(payerContextKey).(string)
	return payer
}

// WrapFunc wraps a single handler function with payment enforcement, for
// servers that gate individual routes rather than a whole mux.
func (g *PaymentGate) WrapFunc(h http.HandlerFunc) http.HandlerFunc {
	wrapped := g.Middleware(h)
	return func(w http.ResponseWriter, r *http.Request) {
		wrapped.ServeHTTP(w, r)
	}
}
