package svm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func writeTempWallet(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write temp wallet: %v", err)
	}
	return path
}

func legacyKeypairJSON(t *testing.T, key solana.PrivateKey) []byte {
	t.Helper()
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("failed to marshal legacy keypair: %v", err)
	}
	return data
}

func TestLoadWalletFileVersioned(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := SaveWalletFile(path, key); err != nil {
		t.Fatalf("SaveWalletFile failed: %v", err)
	}

	wallet, err := LoadWalletFile(path)
	if err != nil {
		t.Fatalf("LoadWalletFile failed: %v", err)
	}
	if wallet.Version() != WalletFileVersion {
		t.Errorf("Version = %d, want %d", wallet.Version(), WalletFileVersion)
	}
	if wallet.Address() != key.PublicKey().String() {
		t.Errorf("Address = %s, want %s", wallet.Address(), key.PublicKey())
	}
}

func TestLoadWalletFileLegacyArray(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	path := writeTempWallet(t, "legacy.json", legacyKeypairJSON(t, key))

	wallet, err := LoadWalletFile(path)
	if err != nil {
		t.Fatalf("LoadWalletFile failed: %v", err)
	}
	if wallet.Version() != 0 {
		t.Errorf("Version = %d, want 0 for legacy format", wallet.Version())
	}
	if wallet.Address() != key.PublicKey().String() {
		t.Errorf("Address = %s, want %s", wallet.Address(), key.PublicKey())
	}
}

func TestMigrateWalletFile(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	path := writeTempWallet(t, "legacy.json", legacyKeypairJSON(t, key))
	if err := MigrateWalletFile(path); err != nil {
		t.Fatalf("MigrateWalletFile failed: %v", err)
	}

	wallet, err := LoadWalletFile(path)
	if err != nil {
		t.Fatalf("LoadWalletFile after migration failed: %v", err)
	}
	if wallet.Version() != WalletFileVersion {
		t.Errorf("Version = %d, want %d after migration", wallet.Version(), WalletFileVersion)
	}
	if wallet.Address() != key.PublicKey().String() {
		t.Error("migration changed the keypair")
	}

	// Migrating twice is a no-op.
	if err := MigrateWalletFile(path); err != nil {
		t.Fatalf("second MigrateWalletFile failed: %v", err)
	}
}

func TestLoadWalletFileRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty file", []byte("")},
		{"short keypair", []byte("[1,2,3]")},
		{"byte out of range", []byte(`{"version":1,"keypair":[300` + repeat(",1", 63) + `]}`)},
		{"unknown version", []byte(`{"version":9,"keypair":[1` + repeat(",1", 63) + `]}`)},
		{"garbage", []byte("not json at all")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempWallet(t, "bad.json", tt.content)
			if _, err := LoadWalletFile(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
