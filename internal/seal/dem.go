package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// demContext separates the data-encryption key from the shared base key.
const demContext = "mist seal dem v1 aes-256-gcm"

// errDecryptFailed is returned when the ciphertext does not authenticate under the combined key.
var errDecryptFailed = errors.New("ciphertext authentication failed")

// demKey derives the AES key from the base key recovered by share combination.
func demKey(baseKey []byte) []byte {
	key := make([]byte, 32)
	blake3.DeriveKey(demContext, baseKey, key)

	return key
}

// newGCM builds AES-256-GCM for a derived key.
func newGCM(baseKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(demKey(baseKey))
	if err != nil {
		return nil, fmt.Errorf("aes cipher:\n%w", err)
	}

	return cipher.NewGCM(block)
}

// The data key is sampled fresh for every object, so the fixed nonce is never
// reused under one key.
var demNonce = make([]byte, 12)

func demSeal(baseKey, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(baseKey)
	if err != nil {
		return nil, err
	}

	return aead.Seal(nil, demNonce, plaintext, aad), nil
}

func demOpen(baseKey, blob, aad []byte) ([]byte, error) {
	aead, err := newGCM(baseKey)
	if err != nil {
		return nil, err
	}

	out, err := aead.Open(nil, demNonce, blob, aad)
	if err != nil {
		return nil, errDecryptFailed
	}

	return out, nil
}
