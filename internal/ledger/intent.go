package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Intent is a pending swap intent as stored on the ledger.
type Intent struct {
	ID               ObjectID // ID is the intent object identifier
	EncryptedDetails []byte   // EncryptedDetails is the raw encrypted_details field
	TokenIn          string   // TokenIn is the input coin type
	TokenOut         string   // TokenOut is the output coin type
	DeadlineMs       uint64   // DeadlineMs is the expiry in milliseconds since the epoch
	DecodeErr        error    // DecodeErr is set when the object's fields could not be decoded
}

// Expired reports whether the deadline is strictly before now.
func (i *Intent) Expired(now time.Time) bool {
	return uint64(now.UnixMilli()) > i.DeadlineMs
}

// DecodeIntent converts the Move fields of an intent object into an Intent.
func DecodeIntent(obj *Object) (*Intent, error) {
	m, err := fieldMap(obj.Fields)
	if err != nil {
		return nil, fmt.Errorf("intent %s:\n%w", obj.Ref.ID, err)
	}

	intent := &Intent{ID: obj.Ref.ID}

	raw, err := requireField(m, "encrypted_details")
	if err == nil {
		intent.EncryptedDetails, err = MoveBytes(raw)
	}

	if err != nil {
		return nil, fmt.Errorf("intent %s encrypted_details:\n%w", obj.Ref.ID, err)
	}

	if intent.TokenIn, err = stringField(m, "token_in"); err != nil {
		return nil, fmt.Errorf("intent %s:\n%w", obj.Ref.ID, err)
	}

	if intent.TokenOut, err = stringField(m, "token_out"); err != nil {
		return nil, fmt.Errorf("intent %s:\n%w", obj.Ref.ID, err)
	}

	raw, err = requireField(m, "deadline")
	if err == nil {
		intent.DeadlineMs, err = MoveU64(raw)
	}

	if err != nil {
		return nil, fmt.Errorf("intent %s deadline:\n%w", obj.Ref.ID, err)
	}

	return intent, nil
}

// Deposit is an anonymous deposit held by the pool.
type Deposit struct {
	ID            ObjectID // ID is the deposit object (or table entry) identifier
	EncryptedData []byte   // EncryptedData is the raw encrypted_data field
	TokenType     string   // TokenType is the deposited coin type
	Amount        uint64   // Amount is the deposited amount, zero if hidden
}

// DecodeDeposit converts a deposit object, or a table entry wrapping one, into a Deposit.
func DecodeDeposit(obj *Object) (*Deposit, error) {
	m, err := fieldMap(obj.Fields)
	if err != nil {
		return nil, fmt.Errorf("deposit %s:\n%w", obj.Ref.ID, err)
	}

	// Table entries are Field<K, V> objects; the deposit sits under "value".
	if v, ok := m["value"]; ok {
		if m, err = fieldMap(v); err != nil {
			return nil, fmt.Errorf("deposit %s value:\n%w", obj.Ref.ID, err)
		}
	}

	d := &Deposit{ID: obj.Ref.ID}

	raw, err := requireField(m, "encrypted_data")
	if err == nil {
		d.EncryptedData, err = MoveBytes(raw)
	}

	if err != nil {
		return nil, fmt.Errorf("deposit %s encrypted_data:\n%w", obj.Ref.ID, err)
	}

	if raw, ok := m["token_type"]; ok {
		if d.TokenType, err = MoveString(raw); err != nil {
			return nil, fmt.Errorf("deposit %s token_type:\n%w", obj.Ref.ID, err)
		}
	}

	if raw, ok := m["amount"]; ok {
		if d.Amount, err = MoveU64(raw); err != nil {
			return nil, fmt.Errorf("deposit %s amount:\n%w", obj.Ref.ID, err)
		}
	}

	return d, nil
}

func stringField(m map[string]json.RawMessage, name string) (string, error) {
	raw, err := requireField(m, name)
	if err != nil {
		return "", err
	}

	// Coin types arrive as a Move String (plain text) or as vector<u8>
	// (number array, or base64 on newer nodes).
	var s string
	if json.Unmarshal(raw, &s) == nil && strings.Contains(s, "::") {
		return s, nil
	}

	out, err := MoveString(raw)
	if err != nil {
		return "", fmt.Errorf("field %q:\n%w", name, err)
	}

	return out, nil
}
