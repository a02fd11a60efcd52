package ledger

import (
	"context"
	"encoding/base64"
)

// Effects summarizes the outcome of an executed or inspected transaction.
type Effects struct {
	Digest string // Digest is the transaction digest (base58)
	Status string // Status is "success" or "failure"
	Error  string // Error is the failure description, empty on success
}

// Success reports whether the transaction committed successfully.
func (e *Effects) Success() bool {
	return e.Status == "success"
}

type effectsJSON struct {
	Status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"status"`
}

// Execute submits a signed transaction and waits for local execution.
func (c *Client) Execute(ctx context.Context, txBytes []byte, signatures []string) (*Effects, error) {
	var resp struct {
		Digest  string      `json:"digest"`
		Effects effectsJSON `json:"effects"`
	}

	params := []any{
		base64.StdEncoding.EncodeToString(txBytes),
		signatures,
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	}

	if err := c.call(ctx, "sui_executeTransactionBlock", params, &resp); err != nil {
		return nil, err
	}

	return &Effects{Digest: resp.Digest, Status: resp.Effects.Status.Status, Error: resp.Effects.Status.Error}, nil
}

// DevInspect runs a transaction kind as sender without committing it.
func (c *Client) DevInspect(ctx context.Context, sender Address, txKind []byte) (*Effects, error) {
	var resp struct {
		Effects effectsJSON `json:"effects"`
		Error   string      `json:"error"`
	}

	params := []any{sender.String(), base64.StdEncoding.EncodeToString(txKind), nil, nil}
	if err := c.call(ctx, "sui_devInspectTransactionBlock", params, &resp); err != nil {
		return nil, err
	}

	eff := &Effects{Status: resp.Effects.Status.Status, Error: resp.Effects.Status.Error}
	if resp.Error != "" {
		eff.Status = "failure"
		eff.Error = resp.Error
	}

	return eff, nil
}
