// Package x402 implements the x402 pay-per-request payment protocol over
// HTTP: servers challenge unpaid requests with 402 + payment requirements,
// clients answer with signed payment proofs, and servers verify and settle
// each proof exactly once before releasing the response.
package x402

import (
	"fmt"
	"math/big"
	"regexp"
)

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents Ethereum Virtual Machine chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana Virtual Machine chains.
	NetworkTypeSVM
)

// ChainConfig contains chain-specific configuration for USDC tokens.
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier (e.g., "base", "solana").
	NetworkID string

	// NetworkType is the virtual machine family of the chain.
	NetworkType NetworkType

	// ChainID is the EVM chain ID (zero for non-EVM chains).
	ChainID int64

	// USDCAddress is the official Circle USDC contract address or mint address.
	USDCAddress string

	// USDCDecimals is the decimal precision of USDC (always 6).
	USDCDecimals int
}

// Supported chain configurations.
var (
	// SolanaMainnet is the configuration for Solana mainnet.
	SolanaMainnet = ChainConfig{
		NetworkID:    "solana",
		NetworkType:  NetworkTypeSVM,
		USDCAddress:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		USDCDecimals: 6,
	}

	// SolanaDevnet is the configuration for Solana devnet.
	SolanaDevnet = ChainConfig{
		NetworkID:    "solana-devnet",
		NetworkType:  NetworkTypeSVM,
		USDCAddress:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		USDCDecimals: 6,
	}

	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		NetworkID:    "base",
		NetworkType:  NetworkTypeEVM,
		ChainID:      8453,
		USDCAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		USDCDecimals: 6,
	}

	// BaseSepolia is the configuration for the Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		NetworkID:    "base-sepolia",
		NetworkType:  NetworkTypeEVM,
		ChainID:      84532,
		USDCAddress:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		USDCDecimals: 6,
	}

	// EthereumMainnet is the configuration for Ethereum mainnet.
	EthereumMainnet = ChainConfig{
		NetworkID:    "ethereum",
		NetworkType:  NetworkTypeEVM,
		ChainID:      1,
		USDCAddress:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		USDCDecimals: 6,
	}
)

var chainRegistry = map[string]ChainConfig{
	SolanaMainnet.NetworkID:   SolanaMainnet,
	SolanaDevnet.NetworkID:    SolanaDevnet,
	BaseMainnet.NetworkID:     BaseMainnet,
	BaseSepolia.NetworkID:     BaseSepolia,
	EthereumMainnet.NetworkID: EthereumMainnet,
}

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars).
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset).
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// ChainByNetwork returns the chain configuration for a network identifier.
func ChainByNetwork(network string) (ChainConfig, error) {
	chain, ok := chainRegistry[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return chain, nil
}

// ValidateNetwork classifies a network identifier, returning its VM type.
// Unregistered networks are classified by identifier shape so custom EVM
// and SVM deployments still validate.
func ValidateNetwork(network string) (NetworkType, error) {
	if network == "" {
		return NetworkTypeUnknown, fmt.Errorf("%w: empty network", ErrInvalidNetwork)
	}
	if chain, ok := chainRegistry[network]; ok {
		return chain.NetworkType, nil
	}
	return NetworkTypeUnknown, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
}

// ValidateAddress validates an address for the given network's address format.
func ValidateAddress(network, address string) error {
	networkType, err := ValidateNetwork(network)
	if err != nil {
		return err
	}

	switch networkType {
	case NetworkTypeEVM:
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("%w: invalid EVM address %q", ErrInvalidConfig, address)
		}
	case NetworkTypeSVM:
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("%w: invalid Solana address %q", ErrInvalidConfig, address)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return nil
}

// ValidateTokenAddress validates a token contract or mint address for the
// given network.
func ValidateTokenAddress(network, address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty token address", ErrInvalidConfig)
	}
	return ValidateAddress(network, address)
}

// ChainID returns the EVM chain ID for a network, or zero for non-EVM chains.
func ChainID(network string) *big.Int {
	if chain, ok := chainRegistry[network]; ok {
		return big.NewInt(chain.ChainID)
	}
	return big.NewInt(0)
}
