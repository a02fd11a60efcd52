package seal

import (
	"crypto/rand"
	"errors"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"

	"Mist/internal/ledger"
)

// ErrDecryptionUnavailable is returned when fewer than threshold verified user
// secret keys could be obtained, whatever the reason for each missing one.
var ErrDecryptionUnavailable = errors.New("decryption unavailable: key server quorum not reached")

// ServerKey is a key server's ledger identity and master public key.
type ServerKey struct {
	ObjectID  ledger.ObjectID // ObjectID identifies the key server
	PublicKey []byte          // PublicKey is the compressed G2 master public key
}

// Encrypt threshold-encrypts plaintext for identity id under package pkg.
// Shares are assigned to servers in order.
func Encrypt(pkg ledger.ObjectID, id []byte, servers []ServerKey, threshold int, plaintext, aad []byte) (*EncryptedObject, error) {
	if threshold < 1 || threshold > len(servers) || len(servers) > 255 {
		return nil, fmt.Errorf("%w: threshold %d of %d servers", errShareCount, threshold, len(servers))
	}

	services := make([]Service, len(servers))
	publicKeys := make([]*blst.P2Affine, len(servers))

	for i, s := range servers {
		pk, err := parseG2(s.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("server %s public key:\n%w", s.ObjectID, err)
		}

		services[i] = Service{ObjectID: s.ObjectID, Index: uint8(i)}
		publicKeys[i] = pk
	}

	baseKey := make([]byte, shareSize)
	if _, err := rand.Read(baseKey); err != nil {
		return nil, fmt.Errorf("sample data key:\n%w", err)
	}

	shares, err := splitSecret(baseKey, len(servers), threshold)
	if err != nil {
		return nil, err
	}

	full := Identity(pkg, id)

	nonce, pads, err := encapsulate(full, services, publicKeys)
	if err != nil {
		return nil, err
	}

	blob, err := demSeal(baseKey, plaintext, aad)
	if err != nil {
		return nil, err
	}

	obj := &EncryptedObject{
		Version:         objectVersion,
		PackageID:       pkg,
		ID:              append([]byte(nil), id...),
		Services:        services,
		Threshold:       uint8(threshold),
		Nonce:           nonce,
		EncryptedShares: make([][shareSize]byte, len(servers)),
		Blob:            blob,
		AAD:             aad,
	}

	for i := range shares {
		for j := range pads[i] {
			obj.EncryptedShares[i][j] = shares[i].y[j] ^ pads[i][j]
		}
	}

	return obj, nil
}

// DecryptWithKeys opens obj given verified user secret keys by server. Keys
// for servers not named in obj are ignored. At least Threshold usable keys
// are required.
func DecryptWithKeys(obj *EncryptedObject, keys map[ledger.ObjectID]*blst.P1Affine) ([]byte, error) {
	nonce, err := parseG2(obj.Nonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: nonce:\n%w", ErrMalformedObject, err)
	}

	full := obj.FullID()
	shares := make([]share, 0, obj.Threshold)

	for i, s := range obj.Services {
		usk, ok := keys[s.ObjectID]
		if !ok {
			continue
		}

		pad, err := decapsulate(usk, nonce, obj.Nonce[:], full, s)
		if err != nil {
			return nil, err
		}

		y := make([]byte, shareSize)
		for j := range y {
			y[j] = obj.EncryptedShares[i][j] ^ pad[j]
		}

		shares = append(shares, share{x: s.Index + 1, y: y})

		if len(shares) == int(obj.Threshold) {
			break
		}
	}

	if len(shares) < int(obj.Threshold) {
		return nil, fmt.Errorf("%w: %d of %d shares", ErrDecryptionUnavailable, len(shares), obj.Threshold)
	}

	baseKey, err := combineShares(shares)
	if err != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrMalformedObject, err)
	}

	plaintext, err := demOpen(baseKey, obj.Blob, obj.AAD)
	if err != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrMalformedObject, err)
	}

	return plaintext, nil
}
