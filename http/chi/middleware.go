// Package chi adapts the payment gate to the chi router. The gate's
// middleware is already net/http shaped; this package adds per-route
// pricing on top of chi's routing context.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	x402 "github.com/zeroc-labs/x402-go"
	"github.com/zeroc-labs/x402-go/facilitator"
	xhttp "github.com/zeroc-labs/x402-go/http"
)

// Middleware returns the gate's middleware in chi's preferred shape, for
// use with router.Use or router.With.
func Middleware(gate *xhttp.PaymentGate) func(http.Handler) http.Handler {
	return gate.Middleware
}

// RouteGates prices chi route patterns independently, each with its own
// gate. Routes without a configured gate pass through unpaid.
//
// Attach with router.With(gates.Middleware) on the priced routes, or
// router.Use on a subrouter whose patterns are all configured.
type RouteGates struct {
	gates map[string]*xhttp.PaymentGate
}

// NewRouteGates builds one gate per route pattern from the given configs.
func NewRouteGates(oracle facilitator.Oracle, configs map[string]x402.GateConfig, opts ...xhttp.GateOption) (*RouteGates, error) {
	gates := make(map[string]*xhttp.PaymentGate, len(configs))
	for pattern, config := range configs {
		gate, err := xhttp.NewPaymentGate(config, oracle, opts...)
		if err != nil {
			return nil, err
		}
		gates[pattern] = gate
	}
	return &RouteGates{gates: gates}, nil
}

// Middleware enforces the gate configured for the matched route pattern,
// falling back to the request path when no pattern matched yet.
func (rg *RouteGates) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gate := rg.lookup(r)
		if gate == nil {
			next.ServeHTTP(w, r)
			return
		}
		gate.Middleware(next).ServeHTTP(w, r)
	})
}

func (rg *RouteGates) lookup(r *http.Request) *xhttp.PaymentGate {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if gate, ok := rg.gates[routeCtx.RoutePattern()]; ok {
			return gate
		}
	}
	return rg.gates[r.URL.Path]
}
