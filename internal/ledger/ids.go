// Package ledger reads from and writes to the ledger through its JSON-RPC API.
// Loosely typed JSON is decoded into the strong types of this package once,
// here, and nowhere else.
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidID is returned for identifiers that are not 32-byte hex values.
var ErrInvalidID = errors.New("invalid 32-byte identifier")

// ObjectID identifies a ledger object.
type ObjectID [32]byte

// Address identifies an account. Addresses and object IDs share one namespace.
type Address [32]byte

// ClockID is the shared system clock object.
var ClockID = ObjectID{31: 0x06}

// parseHex32 parses "0x"-prefixed or bare hex, left-padding short values with zeros.
func parseHex32(s string) ([32]byte, error) {
	var out [32]byte

	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) == 0 || len(s) > 64 {
		return out, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}

	if len(s)%2 == 1 {
		s = "0" + s
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}

	copy(out[32-len(raw):], raw)

	return out, nil
}

// ParseObjectID parses a hex object ID.
func ParseObjectID(s string) (ObjectID, error) {
	b, err := parseHex32(s)
	return ObjectID(b), err
}

// MustObjectID parses s and panics on failure. Only for constants.
func MustObjectID(s string) ObjectID {
	id, err := ParseObjectID(s)
	if err != nil {
		panic(err)
	}

	return id
}

// ParseAddress parses a hex account address.
func ParseAddress(s string) (Address, error) {
	b, err := parseHex32(s)
	return Address(b), err
}

// String returns the canonical "0x" + 64 hex digit form.
func (id ObjectID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Short returns an abbreviated form for logs.
func (id ObjectID) Short() string {
	return "0x" + hex.EncodeToString(id[:4])
}

// Bytes returns the ID as a byte slice.
func (id ObjectID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the ID is all zeros.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// MarshalJSON encodes the canonical string form.
func (id ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes a hex string.
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseObjectID(s)
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}

// String returns the canonical "0x" + 64 hex digit form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalJSON encodes the canonical string form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// ObjectRef is a versioned reference to an owned object.
type ObjectRef struct {
	ID      ObjectID // ID is the object identifier
	Version uint64   // Version is the object version
	Digest  [32]byte // Digest is the object content digest
}
