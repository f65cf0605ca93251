// Package balance provides payer-side balance preflight: before signing a
// payment the client may ask whether the wallet can cover the amount. The
// answer is deliberately tri-state, because a balance query is a network
// call that can fail without implying anything about the actual balance.
package balance

import (
	"context"
	"math/big"
)

// State is the outcome of a balance check.
type State int

const (
	// StateUnknown means the balance could not be determined. Callers
	// decide whether to proceed optimistically or abort.
	StateUnknown State = iota

	// StateSufficient means the wallet covers the required amount.
	StateSufficient

	// StateInsufficient means the wallet cannot cover the required amount.
	StateInsufficient
)

func (s State) String() string {
	switch s {
	case StateSufficient:
		return "sufficient"
	case StateInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// Funds is the result of a balance check.
type Funds struct {
	// State classifies the outcome.
	State State

	// Balance is the observed balance in atomic units, set when the query
	// succeeded.
	Balance *big.Int

	// Err holds the query failure when State is StateUnknown.
	Err error
}

// Oracle answers balance queries for one network family.
type Oracle interface {
	// Check reports whether owner holds at least required units of asset.
	// A failed query returns StateUnknown with the error attached; it
	// never returns an error directly, because an unreachable balance
	// oracle is advisory, not fatal.
	Check(ctx context.Context, owner, asset string, required *big.Int) Funds
}

// Classify turns an observed balance into a Funds verdict.
func Classify(observed, required *big.Int) Funds {
	if observed == nil || required == nil {
		return Funds{State: StateUnknown}
	}
	if observed.Cmp(required) >= 0 {
		return Funds{State: StateSufficient, Balance: observed}
	}
	return Funds{State: StateInsufficient, Balance: observed}
}
