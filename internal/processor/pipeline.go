// Package processor turns pending swap intents into settlement transactions.
//
// Each intent goes through one pipeline: expiry check, envelope decoding,
// threshold decryption, detail parsing, signature verification, optional
// owner binding, routing and settlement. Every failure is classified into a
// Kind; terminal kinds are never retried, the rest are left for the next
// poll cycle.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"Mist/internal/ledger"
	"Mist/internal/logger"
	"Mist/internal/route"
	"Mist/internal/seal"
	"Mist/internal/settle"
	"Mist/internal/wallet"
)

// Decrypter recovers the plaintext of an encrypted object.
type Decrypter interface {
	Decrypt(ctx context.Context, obj *seal.EncryptedObject) ([]byte, error)
}

// Planner decides how a swap is settled.
type Planner interface {
	Route(in, out string, amount uint64, deadline, now time.Time) (route.Plan, error)
}

// Settler builds and submits settlement transactions.
type Settler interface {
	Settle(ctx context.Context, plan route.Plan, swap settle.Swap) (string, error)
}

// OwnerChecker resolves the owner of the deposit a nullifier spends.
type OwnerChecker interface {
	Owner(ctx context.Context, nullifier [NullifierSize]byte) (ledger.Address, error)
}

// Result is the outcome of processing one intent.
type Result struct {
	Kind     Kind           // Kind classifies the outcome
	TxDigest string         // TxDigest is set for settled intents
	Plan     route.Plan     // Plan is set once routing succeeded
	Signer   ledger.Address // Signer is set once the signature verified
	Err      error          // Err is nil for settled intents
}

// Detail describes the result for the journal.
func (r *Result) Detail() string {
	if r.Err != nil {
		return r.Err.Error()
	}

	switch p := r.Plan.(type) {
	case route.Passthrough:
		return fmt.Sprintf("passthrough %d", p.Amount)
	case route.Routed:
		return fmt.Sprintf("routed %d %s -> %s", p.Amount, p.InputType, p.OutputType)
	}

	return r.Kind.String()
}

// Pipeline processes intents end to end.
type Pipeline struct {
	decrypter Decrypter
	planner   Planner
	settler   Settler
	owners    OwnerChecker // owners is nil when owner binding is disabled
	now       func() time.Time
}

// NewPipeline creates a pipeline. A nil owners disables owner binding.
func NewPipeline(decrypter Decrypter, planner Planner, settler Settler, owners OwnerChecker) *Pipeline {
	return &Pipeline{
		decrypter: decrypter,
		planner:   planner,
		settler:   settler,
		owners:    owners,
		now:       time.Now,
	}
}

// Process runs one intent through the pipeline. It never panics on bad
// input; every failure is reported through the result.
func (p *Pipeline) Process(ctx context.Context, intent *ledger.Intent) Result {
	log := logger.With("intent", intent.ID.Short())

	res := p.process(ctx, log, intent)
	res.Kind = Classify(res.Err)

	switch res.Kind {
	case Settled:
		log.Info("intent settled", "tx", res.TxDigest, "detail", res.Detail())
	case Expired:
		log.Info("intent expired", "deadline", intent.DeadlineMs)
	case Unauthorized:
		log.Error("intent authorization failed", "kind", res.Kind.String(), "error", res.Err)
	case Malformed:
		log.Warn("intent malformed", "kind", res.Kind.String(), "error", res.Err)
	default:
		log.Warn("intent not settled", "kind", res.Kind.String(), "error", res.Err)
	}

	return res
}

func (p *Pipeline) process(ctx context.Context, log *slog.Logger, intent *ledger.Intent) Result {
	if intent.DecodeErr != nil {
		return Result{Err: intent.DecodeErr}
	}

	now := p.now()
	if intent.Expired(now) {
		return Result{Err: fmt.Errorf("%w: deadline %d, now %d", ErrExpired, intent.DeadlineMs, now.UnixMilli())}
	}

	deadline := time.UnixMilli(int64(intent.DeadlineMs))

	// The direction depends only on public fields.
	if _, err := p.planner.Route(intent.TokenIn, intent.TokenOut, 1, deadline, now); err != nil {
		return Result{Err: fmt.Errorf("route:\n%w", err)}
	}

	obj, err := DecodeEnvelope(intent.EncryptedDetails)
	if err != nil {
		return Result{Err: err}
	}

	plaintext, err := p.decrypter.Decrypt(ctx, obj)
	if err != nil {
		return Result{Err: fmt.Errorf("decrypt details:\n%w", err)}
	}

	details, err := ParseDetails(plaintext)
	if err != nil {
		return Result{Err: err}
	}

	log = log.With("nullifier", Fingerprint(details.Nullifier))

	signer, err := wallet.Verify(details.Message, details.Signature)
	if err != nil {
		return Result{Err: fmt.Errorf("verify signature:\n%w", err)}
	}

	res := Result{Signer: signer}

	if p.owners != nil {
		owner, err := p.owners.Owner(ctx, details.Nullifier)
		if err != nil {
			res.Err = fmt.Errorf("owner binding:\n%w", err)
			return res
		}

		if owner != signer {
			res.Err = fmt.Errorf("%w: signer %s", ErrOwnerMismatch, signer)
			return res
		}
	}

	plan, err := p.planner.Route(intent.TokenIn, intent.TokenOut, details.InputAmount, deadline, now)
	if err != nil {
		res.Err = fmt.Errorf("route:\n%w", err)
		return res
	}

	res.Plan = plan

	log.Debug("intent authorized", "signer", signer, "output", plan.OutputAmount())

	swap := settle.Swap{
		Intent:           intent.ID,
		Nullifier:        details.Nullifier[:],
		OutputStealth:    details.OutputStealth,
		RemainderStealth: details.RemainderStealth,
	}

	digest, err := p.settler.Settle(ctx, plan, swap)
	if err != nil {
		res.Err = fmt.Errorf("settle:\n%w", err)
		return res
	}

	res.TxDigest = digest

	return res
}
