package config

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"Mist/internal/wallet"
)

// LoadOrGenerateKey loads the processor's signing key from path, or creates
// and saves a new one if the file does not exist. The file holds either a
// bech32 "suiprivkey1..." string or a raw 32-byte seed.
func LoadOrGenerateKey(path string) (*wallet.Keypair, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		kp, err := generateAndSaveKey(path)
		return kp, true, err
	}

	if err != nil {
		return nil, false, fmt.Errorf("read key file:\n%w", err)
	}

	kp, err := parseKey(data)
	if err != nil {
		return nil, false, fmt.Errorf("parse key file %s:\n%w", path, err)
	}

	return kp, false, nil
}

// parseKey accepts a bech32 private key string or a raw seed.
func parseKey(data []byte) (*wallet.Keypair, error) {
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "suiprivkey") {
		return wallet.ParseBech32(text)
	}

	if len(data) == ed25519.SeedSize {
		return wallet.KeypairFromSeed(data)
	}

	return nil, fmt.Errorf("%w: got %d bytes, want bech32 or %d-byte seed",
		wallet.ErrInvalidPrivateKey, len(bytes.TrimSpace(data)), ed25519.SeedSize)
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (*wallet.Keypair, error) {
	kp, err := wallet.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, []byte(kp.Bech32()+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return kp, nil
}
