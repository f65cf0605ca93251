package evm

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402 "github.com/zeroc-labs/x402-go"
)

// authorization holds the EIP-3009 transferWithAuthorization parameters
// before signing.
type authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// newAuthorization creates an authorization valid from slightly in the
// past (to absorb clock skew) until validSeconds from now, with a random
// replay-protection nonce.
func newAuthorization(from, to common.Address, value *big.Int, validSeconds int64) (*authorization, error) {
	now := time.Now().Unix()

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate authorization nonce: %w", err)
	}

	return &authorization{
		From:        from,
		To:          to,
		Value:       value,
		ValidAfter:  big.NewInt(now - 10),
		ValidBefore: big.NewInt(now + validSeconds),
		Nonce:       nonce,
	}, nil
}

// signTransferAuthorization produces the EIP-712 signature over the
// transferWithAuthorization message for the given token domain.
func signTransferAuthorization(auth *authorization, chainID *big.Int, tokenName, tokenVersion string, verifyingContract common.Address, key *ecdsa.PrivateKey) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              tokenName,
			Version:           tokenVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       auth.Value.String(),
			"validAfter":  auth.ValidAfter.String(),
			"validBefore": auth.ValidBefore.String(),
			"nonce":       hexutil.Encode(auth.Nonce[:]),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("%w: failed to hash typed data: %v", x402.ErrSigningFailed, err)
	}

	signature, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}

	// Ethereum expects the recovery id offset by 27.
	signature[64] += 27
	return hexutil.Encode(signature), nil
}
