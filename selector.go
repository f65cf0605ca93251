package x402

import (
	"math/big"
	"sort"
	"strings"
)

// PaymentSelector chooses which signer should answer which payment
// requirement. Selection is separated from signing so the caller can run
// preflight checks (balance, spending cap) between choosing and signing.
type PaymentSelector interface {
	// Select chooses the best signer and the requirement it should satisfy
	// from the server's accepted payment options.
	Select(requirements []PaymentRequirement, signers []Signer) (Signer, *PaymentRequirement, error)
}

// DefaultPaymentSelector implements the standard payment selection algorithm.
// It selects signers based on:
// 1. Ability to satisfy a requirement (network and token match)
// 2. Signer priority (lower number = higher priority)
// 3. Token priority within the signer
// 4. Configuration order (for ties)
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

// Select implements PaymentSelector.
func (s *DefaultPaymentSelector) Select(requirements []PaymentRequirement, signers []Signer) (Signer, *PaymentRequirement, error) {
	if len(signers) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signers configured", ErrNoValidSigner)
	}
	if len(requirements) == 0 {
		return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "no payment requirements offered", ErrInvalidRequirements)
	}

	var candidates []signerCandidate
	for ri := range requirements {
		requirement := &requirements[ri]

		requiredAmount := new(big.Int)
		if _, ok := requiredAmount.SetString(requirement.MaxAmountRequired, 10); !ok {
			continue
		}

		for _, signer := range signers {
			if !signer.CanSign(requirement) {
				continue
			}

			// Check per-signer amount limit before considering the pair.
			maxAmount := signer.GetMaxAmount()
			if maxAmount != nil && requiredAmount.Cmp(maxAmount) > 0 {
				continue
			}

			tokenPriority := 0
			for _, token := range signer.GetTokens() {
				if strings.EqualFold(token.Address, requirement.Asset) {
					tokenPriority = token.Priority
					break
				}
			}

			candidates = append(candidates, signerCandidate{
				signer:         signer,
				requirement:    requirement,
				signerPriority: signer.GetPriority(),
				tokenPriority:  tokenPriority,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoValidSigner, "no signer can satisfy requirements", ErrNoValidSigner).
			WithDetails("options", len(requirements))
	}

	// Sort by priority (signer first, then token).
	// Lower priority numbers come first (1 > 2 > 3).
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].signerPriority != candidates[j].signerPriority {
			return candidates[i].signerPriority < candidates[j].signerPriority
		}
		return candidates[i].tokenPriority < candidates[j].tokenPriority
	})

	chosen := candidates[0]
	return chosen.signer, chosen.requirement, nil
}

// signerCandidate represents a signer able to satisfy one of the offered
// payment requirements.
type signerCandidate struct {
	signer         Signer
	requirement    *PaymentRequirement
	signerPriority int
	tokenPriority  int
}
