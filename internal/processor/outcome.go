package processor

import (
	"context"
	"errors"

	"Mist/internal/ledger"
	"Mist/internal/ptb"
	"Mist/internal/route"
	"Mist/internal/seal"
	"Mist/internal/settle"
	"Mist/internal/wallet"
)

var (
	// ErrExpired is returned for intents whose deadline has passed.
	ErrExpired = errors.New("intent expired")

	// ErrOwnerMismatch is returned when the signer does not own the deposit being spent.
	ErrOwnerMismatch = errors.New("signer does not own the deposit")

	// ErrUnknownNullifier is returned when no deposit carries the revealed nullifier.
	ErrUnknownNullifier = errors.New("no deposit matches the nullifier")
)

// Kind classifies the outcome of processing one intent.
type Kind uint8

// Values start at one; zero is the journal's pending kind.
const (
	Settled Kind = iota + 1
	Expired
	Transient
	DecryptionUnavailable
	Malformed
	Unauthorized
	Rejected
	Consumed
)

// Kinds lists every outcome kind in order.
var Kinds = []Kind{Settled, Expired, Transient, DecryptionUnavailable, Malformed, Unauthorized, Rejected, Consumed}

// String returns the metric label of k.
func (k Kind) String() string {
	switch k {
	case Settled:
		return "settled"
	case Expired:
		return "expired"
	case Transient:
		return "transient"
	case DecryptionUnavailable:
		return "decryption_unavailable"
	case Malformed:
		return "malformed"
	case Unauthorized:
		return "unauthorized"
	case Rejected:
		return "rejected"
	case Consumed:
		return "consumed"
	default:
		return "pending"
	}
}

// Terminal reports whether an intent with this outcome must not be retried.
// Only transient and decryption-unavailable outcomes are retried, by the next cycle.
func (k Kind) Terminal() bool {
	return k != Transient && k != DecryptionUnavailable
}

// Classify maps a pipeline error to its outcome kind. A nil error is Settled.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Settled

	case errors.Is(err, ErrExpired):
		return Expired

	case errors.Is(err, ledger.ErrIntentGone):
		return Consumed

	// Any other missing object is a protocol object or a deposit; retry.
	case errors.Is(err, ledger.ErrObjectNotFound),
		errors.Is(err, settle.ErrPriceUnavailable):
		return Transient

	case errors.Is(err, settle.ErrExecutionAborted),
		errors.Is(err, route.ErrUnsupportedDirection),
		errors.Is(err, ErrUnknownNullifier):
		return Rejected

	case errors.Is(err, wallet.ErrInvalidSignature),
		errors.Is(err, ErrOwnerMismatch):
		return Unauthorized

	case errors.Is(err, seal.ErrDecryptionUnavailable):
		return DecryptionUnavailable

	case errors.Is(err, ledger.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return Transient

	case wallet.IsMalformed(err),
		errors.Is(err, seal.ErrMalformedObject),
		errors.Is(err, ErrMalformedEnvelope),
		errors.Is(err, ErrMalformedDetails),
		errors.Is(err, route.ErrZeroAmount),
		errors.Is(err, ptb.ErrInvalidTypeTag),
		errors.Is(err, ledger.ErrUnexpectedShape),
		errors.Is(err, ledger.ErrInvalidID):
		return Malformed

	default:
		return Transient
	}
}
