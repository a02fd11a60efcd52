package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

// OwnerKind distinguishes the ownership models of ledger objects.
type OwnerKind uint8

const (
	OwnerUnknown OwnerKind = iota
	OwnerAddress
	OwnerObject
	OwnerShared
	OwnerImmutable
)

// Owner describes who controls an object.
type Owner struct {
	Kind                 OwnerKind // Kind is the ownership model
	Address              Address   // Address is set for address- and object-owned objects
	InitialSharedVersion uint64    // InitialSharedVersion is set for shared objects
}

// UnmarshalJSON decodes the owner union: "Immutable", {"AddressOwner": ...},
// {"ObjectOwner": ...} or {"Shared": {"initial_shared_version": n}}.
func (o *Owner) UnmarshalJSON(data []byte) error {
	var s string
	if json.Unmarshal(data, &s) == nil {
		if s == "Immutable" {
			*o = Owner{Kind: OwnerImmutable}
			return nil
		}

		return fmt.Errorf("%w: owner %q", ErrUnexpectedShape, s)
	}

	var raw struct {
		AddressOwner *Address `json:"AddressOwner"`
		ObjectOwner  *Address `json:"ObjectOwner"`
		Shared       *struct {
			InitialSharedVersion U64 `json:"initial_shared_version"`
		} `json:"Shared"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: owner:\n%w", ErrUnexpectedShape, err)
	}

	switch {
	case raw.AddressOwner != nil:
		*o = Owner{Kind: OwnerAddress, Address: *raw.AddressOwner}
	case raw.ObjectOwner != nil:
		*o = Owner{Kind: OwnerObject, Address: *raw.ObjectOwner}
	case raw.Shared != nil:
		*o = Owner{Kind: OwnerShared, InitialSharedVersion: uint64(raw.Shared.InitialSharedVersion)}
	default:
		*o = Owner{Kind: OwnerUnknown}
	}

	return nil
}

// Object is a fetched ledger object with undecoded Move fields.
type Object struct {
	Ref    ObjectRef       // Ref is the current version reference
	Type   string          // Type is the Move type of the object
	Owner  Owner           // Owner is the ownership of the object
	Fields json.RawMessage // Fields holds the Move struct fields as JSON
}

type objectResponse struct {
	Data *struct {
		ObjectID ObjectID `json:"objectId"`
		Version  U64      `json:"version"`
		Digest   string   `json:"digest"`
		Type     string   `json:"type"`
		Owner    *Owner   `json:"owner"`
		Content  *struct {
			DataType string          `json:"dataType"`
			Fields   json.RawMessage `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// GetObject fetches an object with its type, owner and content.
func (c *Client) GetObject(ctx context.Context, id ObjectID) (*Object, error) {
	opts := map[string]bool{"showType": true, "showOwner": true, "showContent": true}

	var resp objectResponse
	if err := c.call(ctx, "sui_getObject", []any{id.String(), opts}, &resp); err != nil {
		return nil, err
	}

	if resp.Data == nil {
		code := ""
		if resp.Error != nil {
			code = resp.Error.Code
		}

		return nil, fmt.Errorf("%w: %s (%s)", ErrObjectNotFound, id, code)
	}

	d := resp.Data

	digest, err := decodeDigest(d.Digest)
	if err != nil {
		return nil, fmt.Errorf("object %s:\n%w", id, err)
	}

	obj := &Object{
		Ref:  ObjectRef{ID: d.ObjectID, Version: uint64(d.Version), Digest: digest},
		Type: d.Type,
	}

	if d.Owner != nil {
		obj.Owner = *d.Owner
	}

	if d.Content != nil {
		obj.Fields = d.Content.Fields
	}

	return obj, nil
}

// SharedVersion returns the initial shared version of a shared object.
// It is always read fresh; callers do not cache it across attempts.
func (c *Client) SharedVersion(ctx context.Context, id ObjectID) (uint64, error) {
	obj, err := c.GetObject(ctx, id)
	if err != nil {
		return 0, err
	}

	if obj.Owner.Kind != OwnerShared {
		return 0, fmt.Errorf("%w: %s", ErrNotShared, id)
	}

	return obj.Owner.InitialSharedVersion, nil
}

// PoolSqrtPrice returns the current Q64.64 square-root price of a
// concentrated-liquidity pool as a decimal string.
func (c *Client) PoolSqrtPrice(ctx context.Context, pool ObjectID) (string, error) {
	obj, err := c.GetObject(ctx, pool)
	if err != nil {
		return "", err
	}

	m, err := fieldMap(obj.Fields)
	if err != nil {
		return "", fmt.Errorf("pool %s:\n%w", pool.Short(), err)
	}

	raw, err := requireField(m, "sqrt_price")
	if err != nil {
		return "", fmt.Errorf("pool %s:\n%w", pool.Short(), err)
	}

	var price string
	if err := json.Unmarshal(raw, &price); err != nil || price == "" {
		return "", fmt.Errorf("%w: pool %s sqrt_price %s", ErrUnexpectedShape, pool.Short(), raw)
	}

	return price, nil
}

func decodeDigest(s string) ([32]byte, error) {
	var out [32]byte

	if s == "" {
		return out, nil
	}

	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("%w: digest %q", ErrUnexpectedShape, s)
	}

	copy(out[:], raw)

	return out, nil
}

// EncodeDigest returns the base58 text form of a digest.
func EncodeDigest(d [32]byte) string {
	return base58.Encode(d[:])
}

// MoveBytes decodes a Move vector<u8> field, given as a JSON array of numbers
// or as a base64 string depending on the node version.
func MoveBytes(raw json.RawMessage) ([]byte, error) {
	var nums []uint16
	if err := json.Unmarshal(raw, &nums); err == nil {
		out := make([]byte, len(nums))

		for i, n := range nums {
			if n > 0xff {
				return nil, fmt.Errorf("%w: byte value %d", ErrUnexpectedShape, n)
			}

			out[i] = byte(n)
		}

		return out, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: vector<u8>", ErrUnexpectedShape)
	}

	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: vector<u8> base64", ErrUnexpectedShape)
	}

	return out, nil
}

// MoveString decodes a vector<u8> field holding UTF-8 text.
func MoveString(raw json.RawMessage) (string, error) {
	b, err := MoveBytes(raw)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrUnexpectedShape)
	}

	return string(b), nil
}

// MoveU64 decodes a u64 field, given as a decimal string or a number.
func MoveU64(raw json.RawMessage) (uint64, error) {
	return decodeU64(raw)
}

// fieldMap unpacks a Move struct's fields, descending through the
// {"type": ..., "fields": {...}} wrapper used for nested structs.
func fieldMap(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: fields:\n%w", ErrUnexpectedShape, err)
	}

	if inner, ok := m["fields"]; ok {
		if _, hasType := m["type"]; hasType {
			return fieldMap(inner)
		}
	}

	return m, nil
}

func requireField(m map[string]json.RawMessage, name string) (json.RawMessage, error) {
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrUnexpectedShape, name)
	}

	return v, nil
}
