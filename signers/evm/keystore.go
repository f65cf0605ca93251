package evm

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	x402 "github.com/zeroc-labs/x402-go"
)

// WithKeystore loads the signing key from a geth keystore file.
func WithKeystore(path, passphrase string) Option {
	return func(s *Signer) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		key, err := keystore.DecryptKey(data, passphrase)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
		}
		s.privateKey = key.PrivateKey
		return nil
	}
}

// WithMnemonic derives the signing key from a BIP-39 mnemonic at the
// standard Ethereum path m/44'/60'/0'/0/{index}.
func WithMnemonic(mnemonic string, index uint32) Option {
	return func(s *Signer) error {
		if !bip39.IsMnemonicValid(mnemonic) {
			return x402.ErrInvalidMnemonic
		}

		seed := bip39.NewSeed(mnemonic, "")
		key, err := deriveEthereumKey(seed, index)
		if err != nil {
			return err
		}
		s.privateKey = key
		return nil
	}
}

// deriveEthereumKey walks the BIP-32 path m/44'/60'/0'/0/index.
func deriveEthereumKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild,
		0,
		index,
	}

	child := master
	for _, step := range path {
		child, err = child.NewChildKey(step)
		if err != nil {
			return nil, fmt.Errorf("%w: derivation failed: %v", x402.ErrInvalidMnemonic, err)
		}
	}

	key, err := crypto.ToECDSA(child.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return key, nil
}
