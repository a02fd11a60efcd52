package seal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	blst "github.com/supranational/blst/bindings/go"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"Mist/internal/ledger"
)

// identityDST separates the identity hash from other hash-to-curve uses.
var identityDST = []byte("MIST-SEAL-IBE-BLS12381G1_XMD:SHA-256_SSWU_RO_")

// kdfInfo prefixes the context bound into each share key.
var kdfInfo = []byte("mist-seal-share-key-v1")

const (
	g1Size = 48
	g2Size = 96
)

var (
	errInvalidPoint  = errors.New("invalid curve point")
	errInvalidScalar = errors.New("invalid scalar")
)

// MasterKey is a key server's IBE master secret.
type MasterKey struct {
	secret *blst.Scalar
	public *blst.P2Affine
}

// GenerateMasterKey derives a master key from at least 32 bytes of seed material.
// A nil seed draws from crypto/rand.
func GenerateMasterKey(seed []byte) (*MasterKey, error) {
	if seed == nil {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate seed:\n%w", err)
		}
	}

	if len(seed) < 32 {
		return nil, fmt.Errorf("%w: seed is %d bytes", errInvalidScalar, len(seed))
	}

	sk := blst.KeyGen(seed)
	if sk == nil {
		return nil, errInvalidScalar
	}

	return &MasterKey{secret: sk, public: new(blst.P2Affine).From(sk)}, nil
}

// ParseMasterKey decodes a 32-byte big-endian master secret.
func ParseMasterKey(b []byte) (*MasterKey, error) {
	sk := new(blst.Scalar).Deserialize(b)
	if sk == nil || len(b) != 32 {
		return nil, errInvalidScalar
	}

	return &MasterKey{secret: sk, public: new(blst.P2Affine).From(sk)}, nil
}

// Bytes returns the 32-byte big-endian master secret.
func (k *MasterKey) Bytes() []byte {
	return k.secret.Serialize()
}

// PublicKey returns the compressed G2 master public key.
func (k *MasterKey) PublicKey() []byte {
	return k.public.Compress()
}

// Extract returns the user secret key s·H(fullID) in G1.
func (k *MasterKey) Extract(fullID []byte) *blst.P1Affine {
	return hashIdentity(fullID).Mult(k.secret).ToAffine()
}

// hashIdentity maps an identity to G1.
func hashIdentity(fullID []byte) *blst.P1 {
	return blst.HashToG1(fullID, identityDST)
}

// parseG2 decompresses and subgroup-checks a G2 point.
func parseG2(b []byte) (*blst.P2Affine, error) {
	if len(b) != g2Size {
		return nil, fmt.Errorf("%w: G2 point is %d bytes", errInvalidPoint, len(b))
	}

	p := new(blst.P2Affine).Uncompress(b)
	if p == nil || !p.InG2() {
		return nil, errInvalidPoint
	}

	return p, nil
}

// parseG1 decompresses and subgroup-checks a G1 point.
func parseG1(b []byte) (*blst.P1Affine, error) {
	if len(b) != g1Size {
		return nil, fmt.Errorf("%w: G1 point is %d bytes", errInvalidPoint, len(b))
	}

	p := new(blst.P1Affine).Uncompress(b)
	if p == nil || !p.InG1() {
		return nil, errInvalidPoint
	}

	return p, nil
}

// pairing computes e(p, q) in GT.
func pairing(p *blst.P1Affine, q *blst.P2Affine) *blst.Fp12 {
	gt := blst.Fp12MillerLoop(q, p)
	gt.FinalExp()

	return gt
}

// VerifyUserKey checks e(usk, G2) == e(H(fullID), mpk).
func VerifyUserKey(usk *blst.P1Affine, fullID []byte, mpk *blst.P2Affine) bool {
	left := pairing(usk, blst.P2Generator().ToAffine())
	right := pairing(hashIdentity(fullID).ToAffine(), mpk)

	return left.Equals(right)
}

// shareKey derives the one-time pad for one encrypted share from the pairing
// value and the context that binds it to this object and server.
func shareKey(gt *blst.Fp12, nonce []byte, gid *blst.P1Affine, server ledger.ObjectID, index uint8) ([shareSize]byte, error) {
	var out [shareSize]byte

	info := make([]byte, 0, len(kdfInfo)+len(nonce)+g1Size+33)
	info = append(info, kdfInfo...)
	info = append(info, nonce...)
	info = append(info, gid.Compress()...)
	info = append(info, server[:]...)
	info = append(info, index)

	r := hkdf.New(sha3.New256, gt.ToBendian(), nil, info)
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, fmt.Errorf("derive share key:\n%w", err)
	}

	return out, nil
}

// encapsulate returns r·G2 and the share key for each server public key.
func encapsulate(fullID []byte, services []Service, publicKeys []*blst.P2Affine) ([nonceSize]byte, [][shareSize]byte, error) {
	var nonce [nonceSize]byte

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nonce, nil, fmt.Errorf("sample randomness:\n%w", err)
	}

	r := blst.KeyGen(seed)
	copy(nonce[:], blst.P2Generator().Mult(r).ToAffine().Compress())

	gid := hashIdentity(fullID)
	gidAff := gid.ToAffine()
	rGid := gid.Mult(r).ToAffine()

	keys := make([][shareSize]byte, len(services))

	for i, s := range services {
		k, err := shareKey(pairing(rGid, publicKeys[i]), nonce[:], gidAff, s.ObjectID, s.Index)
		if err != nil {
			return nonce, nil, err
		}

		keys[i] = k
	}

	return nonce, keys, nil
}

// decapsulate recovers one server's share key from its user secret key.
func decapsulate(usk *blst.P1Affine, nonce *blst.P2Affine, nonceBytes, fullID []byte, s Service) ([shareSize]byte, error) {
	gid := hashIdentity(fullID).ToAffine()
	return shareKey(pairing(usk, nonce), nonceBytes, gid, s.ObjectID, s.Index)
}
