package keyserver

import (
	"context"
	"fmt"

	"Mist/internal/ledger"
	"Mist/internal/ptb"
)

// PolicyChecker decides whether user may obtain keys for a decoded policy
// transaction.
type PolicyChecker interface {
	Check(ctx context.Context, user ledger.Address, tx *ptb.ProgrammableTransaction) error
}

// Inspector dry-runs a transaction kind.
type Inspector interface {
	DevInspect(ctx context.Context, sender ledger.Address, txKind []byte) (*ledger.Effects, error)
}

// LedgerPolicy approves a request when the policy transaction succeeds in a
// dry run with the user as sender.
type LedgerPolicy struct {
	Ledger Inspector // Ledger executes the dry run
}

// Check implements PolicyChecker.
func (p LedgerPolicy) Check(ctx context.Context, user ledger.Address, tx *ptb.ProgrammableTransaction) error {
	eff, err := p.Ledger.DevInspect(ctx, user, tx.EncodeKind())
	if err != nil {
		return fmt.Errorf("%w:\n%w", errPolicyTransport, err)
	}

	if !eff.Success() {
		return fmt.Errorf("%w: %s", errPolicyDenied, eff.Error)
	}

	return nil
}

// AllowAll approves every well-formed request. It is meant for local networks
// where no policy package is deployed.
type AllowAll struct{}

// Check implements PolicyChecker.
func (AllowAll) Check(context.Context, ledger.Address, *ptb.ProgrammableTransaction) error {
	return nil
}
