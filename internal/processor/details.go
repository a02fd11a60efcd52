package processor

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"Mist/internal/ledger"
	"Mist/internal/seal"
)

var (
	// ErrMalformedEnvelope is returned when an on-chain ciphertext field is not
	// UTF-8 base64 of an encrypted object.
	ErrMalformedEnvelope = errors.New("malformed ciphertext envelope")

	// ErrMalformedDetails is returned when decrypted intent or deposit data cannot be parsed.
	ErrMalformedDetails = errors.New("malformed decrypted details")
)

// NullifierSize is the length of a nullifier in bytes.
const NullifierSize = 32

// DecodeEnvelope parses a ciphertext field: UTF-8 text holding standard
// base64 of a BCS encrypted object.
func DecodeEnvelope(field []byte) (*seal.EncryptedObject, error) {
	if !utf8.Valid(field) {
		return nil, fmt.Errorf("%w: not UTF-8", ErrMalformedEnvelope)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(field)))
	if err != nil {
		return nil, fmt.Errorf("%w: base64:\n%w", ErrMalformedEnvelope, err)
	}

	obj, err := seal.UnmarshalEncryptedObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrMalformedEnvelope, err)
	}

	return obj, nil
}

// DecryptedSwapDetails is the plaintext of an intent's encrypted details.
// Every field is carried as the wallet produced it.
type DecryptedSwapDetails struct {
	Nullifier        string `json:"nullifier"`        // Nullifier is the hex deposit secret
	InputAmount      string `json:"inputAmount"`      // InputAmount is a decimal base-unit amount
	OutputStealth    string `json:"outputStealth"`    // OutputStealth receives the swap output
	RemainderStealth string `json:"remainderStealth"` // RemainderStealth receives any remainder
	Signature        string `json:"signature"`        // Signature authorizes the four fields above
}

// SignedMessage returns the text the wallet signed: compact JSON of the four
// authorized fields in fixed order, without HTML escaping.
func (d *DecryptedSwapDetails) SignedMessage() []byte {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	enc.Encode(struct {
		Nullifier        string `json:"nullifier"`
		InputAmount      string `json:"inputAmount"`
		OutputStealth    string `json:"outputStealth"`
		RemainderStealth string `json:"remainderStealth"`
	}{d.Nullifier, d.InputAmount, d.OutputStealth, d.RemainderStealth})

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// SwapDetails is the strongly typed form of DecryptedSwapDetails.
type SwapDetails struct {
	Nullifier        [NullifierSize]byte // Nullifier is the deposit secret
	InputAmount      uint64              // InputAmount is the amount to swap
	OutputStealth    ledger.Address      // OutputStealth receives the swap output
	RemainderStealth ledger.Address      // RemainderStealth receives any remainder
	Signature        string              // Signature is the wallet's base64 signature
	Message          []byte              // Message is the text Signature must cover
}

// ParseDetails decodes and validates decrypted intent details.
func ParseDetails(plaintext []byte) (*SwapDetails, error) {
	var raw DecryptedSwapDetails

	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return nil, fmt.Errorf("%w: json:\n%w", ErrMalformedDetails, err)
	}

	nullifier, err := parseNullifier(raw.Nullifier)
	if err != nil {
		return nil, err
	}

	amount, err := strconv.ParseUint(strings.TrimSpace(raw.InputAmount), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: inputAmount %q", ErrMalformedDetails, raw.InputAmount)
	}

	out, err := ledger.ParseAddress(raw.OutputStealth)
	if err != nil {
		return nil, fmt.Errorf("%w: outputStealth:\n%w", ErrMalformedDetails, err)
	}

	rem, err := ledger.ParseAddress(raw.RemainderStealth)
	if err != nil {
		return nil, fmt.Errorf("%w: remainderStealth:\n%w", ErrMalformedDetails, err)
	}

	if raw.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformedDetails)
	}

	return &SwapDetails{
		Nullifier:        nullifier,
		InputAmount:      amount,
		OutputStealth:    out,
		RemainderStealth: rem,
		Signature:        raw.Signature,
		Message:          raw.SignedMessage(),
	}, nil
}

// DepositData is the plaintext of a deposit's encrypted data.
type DepositData struct {
	Amount       string `json:"amount"`       // Amount is a decimal base-unit amount
	Nullifier    string `json:"nullifier"`    // Nullifier is the hex deposit secret
	OwnerAddress string `json:"ownerAddress"` // OwnerAddress is the depositor's address
}

// depositRecord is a parsed DepositData.
type depositRecord struct {
	nullifier [NullifierSize]byte
	owner     ledger.Address
}

func parseDeposit(plaintext []byte) (*depositRecord, error) {
	var raw DepositData

	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return nil, fmt.Errorf("%w: deposit json:\n%w", ErrMalformedDetails, err)
	}

	nullifier, err := parseNullifier(raw.Nullifier)
	if err != nil {
		return nil, err
	}

	owner, err := ledger.ParseAddress(raw.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: ownerAddress:\n%w", ErrMalformedDetails, err)
	}

	return &depositRecord{nullifier: nullifier, owner: owner}, nil
}

func parseNullifier(s string) ([NullifierSize]byte, error) {
	var out [NullifierSize]byte

	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != NullifierSize {
		return out, fmt.Errorf("%w: nullifier must be %d hex-encoded bytes", ErrMalformedDetails, NullifierSize)
	}

	copy(out[:], raw)

	return out, nil
}

// Fingerprint identifies a nullifier in logs without revealing it.
func Fingerprint(nullifier [NullifierSize]byte) string {
	sum := blake3.Sum256(nullifier[:])
	return hex.EncodeToString(sum[:6])
}
