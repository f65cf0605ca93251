package svm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/zeroc-labs/x402-go"
)

// WalletFileVersion is the current wallet file format version.
const WalletFileVersion = 1

// Wallet is a Solana keypair loaded from disk.
type Wallet struct {
	version    int
	privateKey solana.PrivateKey
}

// PrivateKey returns the wallet's private key.
func (w *Wallet) PrivateKey() solana.PrivateKey { return w.privateKey }

// Address returns the wallet's public address.
func (w *Wallet) Address() string { return w.privateKey.PublicKey().String() }

// Version returns the format version the wallet was loaded from; zero
// means the legacy bare-array format.
func (w *Wallet) Version() int { return w.version }

// walletFile is the versioned on-disk format: a JSON object carrying the
// format version alongside the keypair bytes. The legacy format was the
// bare keypair array emitted by solana-keygen, which left no room for
// evolving the file without breaking every reader.
type walletFile struct {
	Version int   `json:"version"`
	Keypair []int `json:"keypair"`
}

// LoadWalletFile reads a wallet from disk. Versioned files and legacy
// bare keypair arrays are both accepted; legacy files load with Version 0
// and can be upgraded in place with MigrateWalletFile.
func LoadWalletFile(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty wallet file %s", x402.ErrInvalidKey, path)
	}

	// Legacy solana-keygen format is a bare JSON array of key bytes.
	if trimmed[0] == '[' {
		var raw []int
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("%w: unparseable legacy wallet file: %v", x402.ErrInvalidKey, err)
		}
		key, err := keypairBytes(raw)
		if err != nil {
			return nil, err
		}
		return &Wallet{version: 0, privateKey: key}, nil
	}

	var file walletFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("%w: unparseable wallet file: %v", x402.ErrInvalidKey, err)
	}
	if file.Version != WalletFileVersion {
		return nil, fmt.Errorf("%w: unsupported wallet file version %d", x402.ErrInvalidKey, file.Version)
	}
	key, err := keypairBytes(file.Keypair)
	if err != nil {
		return nil, err
	}
	return &Wallet{version: file.Version, privateKey: key}, nil
}

// SaveWalletFile writes a wallet in the current versioned format with
// owner-only permissions.
func SaveWalletFile(path string, privateKey solana.PrivateKey) error {
	if len(privateKey) != 64 {
		return fmt.Errorf("%w: keypair must be 64 bytes, got %d", x402.ErrInvalidKey, len(privateKey))
	}

	keypair := make([]int, len(privateKey))
	for i, b := range privateKey {
		keypair[i] = int(b)
	}

	data, err := json.Marshal(walletFile{
		Version: WalletFileVersion,
		Keypair: keypair,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal wallet file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	return nil
}

// MigrateWalletFile upgrades a legacy bare-array wallet file to the
// versioned format in place. Already-versioned files are left untouched.
func MigrateWalletFile(path string) error {
	wallet, err := LoadWalletFile(path)
	if err != nil {
		return err
	}
	if wallet.Version() == WalletFileVersion {
		return nil
	}
	return SaveWalletFile(path, wallet.PrivateKey())
}

func keypairBytes(raw []int) (solana.PrivateKey, error) {
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: keypair must be 64 bytes, got %d", x402.ErrInvalidKey, len(raw))
	}
	key := make(solana.PrivateKey, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: keypair byte %d out of range", x402.ErrInvalidKey, v)
		}
		key[i] = byte(v)
	}
	return key, nil
}
