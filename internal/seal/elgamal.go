package seal

import (
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

// ElGamalKey transports user secret keys from key servers to the client.
// The encryption key lives in G1 with the user secret keys; the verification
// key is the same secret in G2 so servers can check consistency by pairing.
type ElGamalKey struct {
	secret *blst.Scalar
}

// GenerateElGamalKey creates a fresh transport key.
func GenerateElGamalKey() (*ElGamalKey, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate elgamal seed:\n%w", err)
	}

	return &ElGamalKey{secret: blst.KeyGen(seed)}, nil
}

// EncryptionKey returns sk·G1, compressed.
func (k *ElGamalKey) EncryptionKey() []byte {
	return new(blst.P1Affine).From(k.secret).Compress()
}

// VerificationKey returns sk·G2, compressed.
func (k *ElGamalKey) VerificationKey() []byte {
	return new(blst.P2Affine).From(k.secret).Compress()
}

// Decrypt recovers m = c2 − sk·c1.
func (k *ElGamalKey) Decrypt(c1, c2 []byte) (*blst.P1Affine, error) {
	a, err := parseG1(c1)
	if err != nil {
		return nil, fmt.Errorf("elgamal c1:\n%w", err)
	}

	b, err := parseG1(c2)
	if err != nil {
		return nil, fmt.Errorf("elgamal c2:\n%w", err)
	}

	var shared blst.P1
	shared.FromAffine(a)

	var m blst.P1
	m.FromAffine(b)

	return m.Sub(shared.Mult(k.secret)).ToAffine(), nil
}

// ElGamalEncrypt encrypts a G1 point under a compressed G1 encryption key and
// returns (c1, c2) = (u·G1, m + u·pk).
func ElGamalEncrypt(encKey []byte, m *blst.P1Affine) (c1, c2 []byte, err error) {
	pk, err := parseG1(encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("elgamal key:\n%w", err)
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("sample randomness:\n%w", err)
	}

	u := blst.KeyGen(seed)

	var pkPoint blst.P1
	pkPoint.FromAffine(pk)

	var mPoint blst.P1
	mPoint.FromAffine(m)

	c1 = blst.P1Generator().Mult(u).ToAffine().Compress()
	c2 = mPoint.Add(pkPoint.Mult(u)).ToAffine().Compress()

	return c1, c2, nil
}

// VerifyElGamalKeys checks that encKey (G1) and verKey (G2) share one secret:
// e(encKey, G2) == e(G1, verKey).
func VerifyElGamalKeys(encKey, verKey []byte) bool {
	ek, err := parseG1(encKey)
	if err != nil {
		return false
	}

	vk, err := parseG2(verKey)
	if err != nil {
		return false
	}

	left := pairing(ek, blst.P2Generator().ToAffine())
	right := pairing(blst.P1Generator().ToAffine(), vk)

	return left.Equals(right)
}
