package processor

import (
	"context"
	"errors"
	"fmt"

	"Mist/internal/ledger"
	"Mist/internal/logger"
)

// DepositSource lists the deposits held under a table.
type DepositSource interface {
	Deposits(ctx context.Context, table ledger.ObjectID) ([]*ledger.Deposit, error)
}

// OwnerResolver finds the owner of the deposit a nullifier spends by
// decrypting the pool's deposit records. Parsed records are cached by
// deposit ID for the life of the process. It is used from the poll loop
// only and is not safe for concurrent use.
type OwnerResolver struct {
	source    DepositSource
	table     ledger.ObjectID
	decrypter Decrypter
	cache     map[ledger.ObjectID]*depositRecord // cache holds parsed records, nil for unreadable ones
}

// NewOwnerResolver creates a resolver over the deposits under table.
func NewOwnerResolver(source DepositSource, table ledger.ObjectID, decrypter Decrypter) *OwnerResolver {
	return &OwnerResolver{
		source:    source,
		table:     table,
		decrypter: decrypter,
		cache:     make(map[ledger.ObjectID]*depositRecord),
	}
}

// Owner returns the owner recorded in the deposit carrying nullifier.
// Deposits whose data cannot be parsed are skipped and not retried. If no
// deposit matches and some could not be decrypted, the decryption error is
// returned so that the intent is retried rather than rejected.
func (r *OwnerResolver) Owner(ctx context.Context, nullifier [NullifierSize]byte) (ledger.Address, error) {
	deposits, err := r.source.Deposits(ctx, r.table)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("list deposits:\n%w", err)
	}

	var retryErr error

	for _, d := range deposits {
		rec, known := r.cache[d.ID]
		if !known {
			rec, err = r.load(ctx, d)
			if err != nil && Classify(err).Terminal() {
				logger.Debug("skipping unreadable deposit", "deposit", d.ID.Short(), "error", err)
				r.cache[d.ID] = nil

				continue
			}

			if err != nil {
				retryErr = errors.Join(retryErr, err)
				continue
			}

			r.cache[d.ID] = rec
		}

		if rec != nil && rec.nullifier == nullifier {
			return rec.owner, nil
		}
	}

	if retryErr != nil {
		return ledger.Address{}, fmt.Errorf("resolve deposit owner:\n%w", retryErr)
	}

	return ledger.Address{}, ErrUnknownNullifier
}

func (r *OwnerResolver) load(ctx context.Context, d *ledger.Deposit) (*depositRecord, error) {
	obj, err := DecodeEnvelope(d.EncryptedData)
	if err != nil {
		return nil, err
	}

	plaintext, err := r.decrypter.Decrypt(ctx, obj)
	if err != nil {
		return nil, fmt.Errorf("decrypt deposit %s:\n%w", d.ID.Short(), err)
	}

	return parseDeposit(plaintext)
}
