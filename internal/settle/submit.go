package settle

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"Mist/internal/ledger"
	"Mist/internal/ptb"
	"Mist/internal/route"
)

// ErrExecutionAborted is returned when a submitted transaction executed but
// failed. Resubmitting the same parameters fails the same way.
var ErrExecutionAborted = errors.New("settlement execution aborted")

// AbortError describes a failed execution.
type AbortError struct {
	Digest  string // Digest identifies the failed transaction
	Code    uint64 // Code is the Move abort code, when HasCode
	HasCode bool   // HasCode reports whether the failure was a Move abort
	Message string // Message is the ledger's failure description
}

func (e *AbortError) Error() string {
	if e.HasCode {
		return fmt.Sprintf("%v: abort code %d in %s: %s", ErrExecutionAborted, e.Code, e.Digest, e.Message)
	}

	return fmt.Sprintf("%v: %s: %s", ErrExecutionAborted, e.Digest, e.Message)
}

func (e *AbortError) Unwrap() error {
	return ErrExecutionAborted
}

// abortCode matches the trailing code of "MoveAbort(<location>, <code>) in command <n>".
var abortCode = regexp.MustCompile(`MoveAbort\(.*,\s*(\d+)\)`)

// parseAbort builds an AbortError from a failure description.
func parseAbort(digest, message string) *AbortError {
	e := &AbortError{Digest: digest, Message: message}

	if m := abortCode.FindStringSubmatch(message); m != nil {
		if code, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			e.Code, e.HasCode = code, true
		}
	}

	return e
}

// Signer signs transactions with the processor key.
type Signer interface {
	Address() ledger.Address
	SignTransaction(txBytes []byte) string
}

// Executor submits signed transactions.
type Executor interface {
	Execute(ctx context.Context, txBytes []byte, signatures []string) (*ledger.Effects, error)
}

// Submitter signs and executes settlement transactions.
type Submitter struct {
	signer   Signer
	executor Executor
}

// NewSubmitter creates a submitter.
func NewSubmitter(signer Signer, executor Executor) *Submitter {
	return &Submitter{signer: signer, executor: executor}
}

// Submit signs tx, executes it and returns its digest once the effects show
// success. Transport failures are returned unchanged for the caller to retry.
func (s *Submitter) Submit(ctx context.Context, tx *ptb.TransactionData) (string, error) {
	txBytes := tx.Encode()

	eff, err := s.executor.Execute(ctx, txBytes, []string{s.signer.SignTransaction(txBytes)})
	if err != nil {
		return "", fmt.Errorf("execute settlement:\n%w", err)
	}

	if !eff.Success() {
		return "", parseAbort(eff.Digest, eff.Error)
	}

	return eff.Digest, nil
}

// Settler builds and submits settlement transactions.
type Settler struct {
	builder   *Builder
	submitter *Submitter
}

// NewSettler wires a builder and a submitter.
func NewSettler(builder *Builder, submitter *Submitter) *Settler {
	return &Settler{builder: builder, submitter: submitter}
}

// Settle builds a fresh transaction for plan and submits it.
func (s *Settler) Settle(ctx context.Context, plan route.Plan, swap Swap) (string, error) {
	tx, err := s.builder.Build(ctx, plan, swap)
	if err != nil {
		return "", err
	}

	return s.submitter.Submit(ctx, tx)
}
