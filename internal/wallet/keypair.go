package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"Mist/internal/ledger"
)

// privateKeyHRP is the human-readable part of exported private keys.
const privateKeyHRP = "suiprivkey"

// ErrInvalidPrivateKey is returned for private key strings that cannot be used.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// Keypair is an Ed25519 signing key with its ledger address.
type Keypair struct {
	priv    ed25519.PrivateKey // priv is the Ed25519 private key
	pub     ed25519.PublicKey  // pub is the Ed25519 public key
	address ledger.Address     // address is BLAKE2b-256(0x00 || pub)
}

// GenerateKeypair creates a random keypair.
func GenerateKeypair() (*Keypair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed:\n%w", err)
	}

	return KeypairFromSeed(seed)
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidPrivateKey, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	return &Keypair{priv: priv, pub: pub, address: DeriveAddress(FlagEd25519, pub)}, nil
}

// ParseBech32 decodes a "suiprivkey1..." string holding flag || seed.
// Only Ed25519 keys are accepted.
func ParseBech32(s string) (*Keypair, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bech32:\n%w", ErrInvalidPrivateKey, err)
	}

	if hrp != privateKeyHRP {
		return nil, fmt.Errorf("%w: prefix %q", ErrInvalidPrivateKey, hrp)
	}

	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: bech32 payload:\n%w", ErrInvalidPrivateKey, err)
	}

	if len(raw) != 1+ed25519.SeedSize {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrInvalidPrivateKey, len(raw))
	}

	if raw[0] != FlagEd25519 {
		return nil, fmt.Errorf("%w: scheme flag 0x%02x", ErrInvalidPrivateKey, raw[0])
	}

	return KeypairFromSeed(raw[1:])
}

// Bech32 encodes the keypair as a "suiprivkey1..." string.
func (k *Keypair) Bech32() string {
	payload := append([]byte{FlagEd25519}, k.priv.Seed()...)

	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		panic(err)
	}

	s, err := bech32.Encode(privateKeyHRP, conv)
	if err != nil {
		panic(err)
	}

	return s
}

// Seed returns the 32-byte private seed.
func (k *Keypair) Seed() []byte {
	return k.priv.Seed()
}

// Address returns the keypair's ledger address.
func (k *Keypair) Address() ledger.Address {
	return k.address
}

// PublicKey returns the Ed25519 public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.pub
}

// SignDigest signs a 32-byte digest and returns the serialized signature bytes.
func (k *Keypair) SignDigest(digest [32]byte) []byte {
	sig := ed25519.Sign(k.priv, digest[:])

	out := make([]byte, 0, 1+len(sig)+len(k.pub))
	out = append(out, FlagEd25519)
	out = append(out, sig...)
	out = append(out, k.pub...)

	return out
}

// SignPersonalMessage signs msg as a personal message and returns the base64 signature.
func (k *Keypair) SignPersonalMessage(msg []byte) string {
	return base64.StdEncoding.EncodeToString(k.SignDigest(PersonalMessageDigest(msg)))
}

// SignTransaction signs transaction bytes and returns the base64 signature.
func (k *Keypair) SignTransaction(txBytes []byte) string {
	return base64.StdEncoding.EncodeToString(k.SignDigest(TransactionDigest(txBytes)))
}
