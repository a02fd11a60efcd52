package wallet

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"Mist/internal/ledger"
)

var (
	// ErrSignatureEncoding is returned when the signature text or its embedded key cannot be decoded.
	ErrSignatureEncoding = errors.New("signature encoding invalid")

	// ErrSignatureLength is returned when the length does not match the scheme's fixed size.
	ErrSignatureLength = errors.New("signature length invalid for scheme")

	// ErrUnsupportedScheme is returned for any flag other than Ed25519, Secp256k1 and Secp256r1.
	ErrUnsupportedScheme = errors.New("unsupported signature scheme")

	// ErrInvalidSignature is returned when a well-formed signature fails verification.
	ErrInvalidSignature = errors.New("signature verification failed")
)

const sigLen = 64

// schemeSizes maps each supported flag to its public key length.
var schemeSizes = map[byte]int{
	FlagEd25519:   ed25519.PublicKeySize,
	FlagSecp256k1: 33,
	FlagSecp256r1: 33,
}

// IsMalformed reports whether err describes undecodable input rather than a
// cryptographically invalid signature.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrSignatureEncoding) || errors.Is(err, ErrSignatureLength) || errors.Is(err, ErrUnsupportedScheme)
}

// Verify checks a serialized wallet signature (base64 of flag || sig || pubkey)
// over msg signed as a personal message, and returns the signer's address as
// derived from the embedded public key.
func Verify(msg []byte, signatureB64 string) (ledger.Address, error) {
	raw, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("%w: base64:\n%w", ErrSignatureEncoding, err)
	}

	if len(raw) == 0 {
		return ledger.Address{}, fmt.Errorf("%w: empty", ErrSignatureEncoding)
	}

	flag := raw[0]

	pkLen, ok := schemeSizes[flag]
	if !ok {
		return ledger.Address{}, fmt.Errorf("%w: flag 0x%02x", ErrUnsupportedScheme, flag)
	}

	if len(raw) != 1+sigLen+pkLen {
		return ledger.Address{}, fmt.Errorf("%w: flag 0x%02x has %d bytes, want %d", ErrSignatureLength, flag, len(raw), 1+sigLen+pkLen)
	}

	sig := raw[1 : 1+sigLen]
	pub := raw[1+sigLen:]
	digest := PersonalMessageDigest(msg)

	switch flag {
	case FlagEd25519:
		err = verifyEd25519(digest[:], sig, pub)
	case FlagSecp256k1:
		err = verifySecp256k1(digest[:], sig, pub)
	case FlagSecp256r1:
		err = verifySecp256r1(digest[:], sig, pub)
	}

	if err != nil {
		return ledger.Address{}, err
	}

	return DeriveAddress(flag, pub), nil
}

// verifyEd25519 checks an Ed25519 signature over the digest itself.
func verifyEd25519(digest, sig, pub []byte) error {
	if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
		return fmt.Errorf("%w: ed25519", ErrInvalidSignature)
	}

	return nil
}

// verifySecp256k1 checks a compact (r || s) ECDSA signature over SHA-256(digest).
// High-S signatures are rejected.
func verifySecp256k1(digest, sig, pub []byte) error {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("%w: secp256k1 key:\n%w", ErrSignatureEncoding, err)
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) || r.IsZero() || s.IsZero() {
		return fmt.Errorf("%w: secp256k1 scalar out of range", ErrInvalidSignature)
	}

	if s.IsOverHalfOrder() {
		return fmt.Errorf("%w: secp256k1 high s", ErrInvalidSignature)
	}

	hash := sha256.Sum256(digest)
	if !btcecdsa.NewSignature(&r, &s).Verify(hash[:], key) {
		return fmt.Errorf("%w: secp256k1", ErrInvalidSignature)
	}

	return nil
}

// verifySecp256r1 checks a compact (r || s) P-256 ECDSA signature over SHA-256(digest).
func verifySecp256r1(digest, sig, pub []byte) error {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), pub)
	if x == nil {
		return fmt.Errorf("%w: secp256r1 key", ErrSignatureEncoding)
	}

	key := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	hash := sha256.Sum256(digest)

	if !ecdsa.Verify(key, hash[:], r, s) {
		return fmt.Errorf("%w: secp256r1", ErrInvalidSignature)
	}

	return nil
}
