package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SolanaOracle answers SPL token balance queries against a Solana RPC node.
type SolanaOracle struct {
	client *rpc.Client
}

// NewSolanaOracle creates a balance oracle for the given RPC endpoint
// (e.g., rpc.MainNetBeta_RPC).
func NewSolanaOracle(rpcURL string) *SolanaOracle {
	return &SolanaOracle{client: rpc.New(rpcURL)}
}

// Check implements Oracle. The owner's associated token account for the
// mint is derived locally; a missing token account is a definitive zero
// balance, while any other RPC failure yields StateUnknown.
func (o *SolanaOracle) Check(ctx context.Context, owner, asset string, required *big.Int) Funds {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return Funds{State: StateUnknown, Err: fmt.Errorf("invalid owner address: %w", err)}
	}
	mintKey, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return Funds{State: StateUnknown, Err: fmt.Errorf("invalid mint address: %w", err)}
	}

	tokenAccount, _, err := solana.FindAssociatedTokenAddress(ownerKey, mintKey)
	if err != nil {
		return Funds{State: StateUnknown, Err: fmt.Errorf("failed to derive token account: %w", err)}
	}

	result, err := o.client.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentFinalized)
	if err != nil {
		// No token account means the wallet has never held this token.
		if strings.Contains(err.Error(), "could not find account") {
			return Classify(big.NewInt(0), required)
		}
		return Funds{State: StateUnknown, Err: fmt.Errorf("balance query failed: %w", err)}
	}

	if result == nil || result.Value == nil {
		return Funds{State: StateUnknown, Err: fmt.Errorf("empty balance response for %s", tokenAccount)}
	}

	observed, ok := new(big.Int).SetString(result.Value.Amount, 10)
	if !ok {
		return Funds{State: StateUnknown, Err: fmt.Errorf("unparseable balance %q", result.Value.Amount)}
	}

	return Classify(observed, required)
}
