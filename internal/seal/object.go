// Package seal implements threshold identity-based encryption with a quorum of
// key servers: the encrypted object envelope, Boneh-Franklin IBE over
// BLS12-381, ElGamal key transport, Shamir sharing of the data key and the
// client that fetches user secret keys from key servers.
package seal

import (
	"errors"
	"fmt"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
)

// ErrMalformedObject is returned for encrypted objects that cannot be parsed or used.
var ErrMalformedObject = errors.New("malformed encrypted object")

const (
	// objectVersion is the only supported envelope version.
	objectVersion = 0

	// kemBonehFranklin tags the IBE variant of the encrypted shares.
	kemBonehFranklin = 0

	// demAES256GCM tags the AES-256-GCM ciphertext variant.
	demAES256GCM = 0

	nonceSize = 96 // compressed G2
	shareSize = 32
)

// Service names one key server and the share index assigned to it.
type Service struct {
	ObjectID ledger.ObjectID // ObjectID identifies the key server on the ledger
	Index    uint8           // Index is the share's position; its x coordinate is Index + 1
}

// EncryptedObject is the threshold-encryption envelope stored on the ledger.
type EncryptedObject struct {
	Version         uint8             // Version is the envelope version
	PackageID       ledger.ObjectID   // PackageID is the package defining the access policy
	ID              []byte            // ID is the policy identity inside the package
	Services        []Service         // Services hold the key servers in share order
	Threshold       uint8             // Threshold is the number of shares needed
	Nonce           [nonceSize]byte   // Nonce is r·G2 for the IBE encapsulation
	EncryptedShares [][shareSize]byte // EncryptedShares are the data-key shares, one per service
	Blob            []byte            // Blob is the AES-256-GCM ciphertext
	AAD             []byte            // AAD is the optional associated data, nil if absent
}

// Marshal returns the BCS encoding of the object.
func (o *EncryptedObject) Marshal() []byte {
	e := bcs.NewEncoder(256 + len(o.Blob))

	e.U8(o.Version).Fixed(o.PackageID[:]).Vec(o.ID)

	e.Len(len(o.Services))
	for _, s := range o.Services {
		e.Fixed(s.ObjectID[:]).U8(s.Index)
	}

	e.U8(o.Threshold)

	e.U8(kemBonehFranklin).Fixed(o.Nonce[:])
	e.Len(len(o.EncryptedShares))
	for _, s := range o.EncryptedShares {
		e.Fixed(s[:])
	}

	e.U8(demAES256GCM).Vec(o.Blob)
	if o.AAD == nil {
		e.None()
	} else {
		e.Some().Vec(o.AAD)
	}

	return e.Bytes()
}

// UnmarshalEncryptedObject parses and validates a BCS-encoded object.
func UnmarshalEncryptedObject(data []byte) (*EncryptedObject, error) {
	d := bcs.NewDecoder(data)
	o := &EncryptedObject{}

	o.Version = d.U8()
	copy(o.PackageID[:], d.Fixed(32))
	o.ID = d.Vec()

	n := d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		var s Service
		copy(s.ObjectID[:], d.Fixed(32))
		s.Index = d.U8()
		o.Services = append(o.Services, s)
	}

	o.Threshold = d.U8()

	if kem := d.U8(); d.Err() == nil && kem != kemBonehFranklin {
		return nil, fmt.Errorf("%w: kem tag %d", ErrMalformedObject, kem)
	}

	copy(o.Nonce[:], d.Fixed(nonceSize))

	n = d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		var s [shareSize]byte
		copy(s[:], d.Fixed(shareSize))
		o.EncryptedShares = append(o.EncryptedShares, s)
	}

	if dem := d.U8(); d.Err() == nil && dem != demAES256GCM {
		return nil, fmt.Errorf("%w: dem tag %d", ErrMalformedObject, dem)
	}

	o.Blob = d.Vec()
	if d.U8() == 1 {
		o.AAD = d.Vec()
	}

	if d.Err() != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrMalformedObject, d.Err())
	}

	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedObject, d.Remaining())
	}

	if err := o.validate(); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *EncryptedObject) validate() error {
	switch {
	case o.Version != objectVersion:
		return fmt.Errorf("%w: version %d", ErrMalformedObject, o.Version)
	case len(o.Services) == 0:
		return fmt.Errorf("%w: no services", ErrMalformedObject)
	case len(o.EncryptedShares) != len(o.Services):
		return fmt.Errorf("%w: %d shares for %d services", ErrMalformedObject, len(o.EncryptedShares), len(o.Services))
	case o.Threshold == 0 || int(o.Threshold) > len(o.Services):
		return fmt.Errorf("%w: threshold %d of %d", ErrMalformedObject, o.Threshold, len(o.Services))
	}

	seen := make(map[uint8]bool, len(o.Services))
	for _, s := range o.Services {
		if s.Index == 0xff || seen[s.Index] {
			return fmt.Errorf("%w: share index %d", ErrMalformedObject, s.Index)
		}

		seen[s.Index] = true
	}

	return nil
}

// FullID returns packageID || id, the identity hashed to G1.
func (o *EncryptedObject) FullID() []byte {
	return Identity(o.PackageID, o.ID)
}

// Identity returns the full identity pkg || id under which objects are encrypted.
func Identity(pkg ledger.ObjectID, id []byte) []byte {
	out := make([]byte, 0, 32+len(id))
	out = append(out, pkg[:]...)

	return append(out, id...)
}
