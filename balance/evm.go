package balance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// balanceOfSelector is the 4-byte selector for ERC-20 balanceOf(address).
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// EVMOracle answers ERC-20 balance queries against an EVM JSON-RPC node.
type EVMOracle struct {
	client *ethclient.Client
}

// NewEVMOracle dials the given JSON-RPC endpoint.
func NewEVMOracle(rpcURL string) (*EVMOracle, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	return &EVMOracle{client: client}, nil
}

// Check implements Oracle via an eth_call to the token's balanceOf.
func (o *EVMOracle) Check(ctx context.Context, owner, asset string, required *big.Int) Funds {
	if !common.IsHexAddress(owner) {
		return Funds{State: StateUnknown, Err: fmt.Errorf("invalid owner address %q", owner)}
	}
	if !common.IsHexAddress(asset) {
		return Funds{State: StateUnknown, Err: fmt.Errorf("invalid token address %q", asset)}
	}

	token := common.HexToAddress(asset)
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(owner).Bytes(), 32)...)

	result, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return Funds{State: StateUnknown, Err: fmt.Errorf("balance query failed: %w", err)}
	}
	if len(result) == 0 {
		return Funds{State: StateUnknown, Err: fmt.Errorf("empty balanceOf response from %s", asset)}
	}

	return Classify(new(big.Int).SetBytes(result), required)
}
