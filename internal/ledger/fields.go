package ledger

import (
	"context"
	"errors"
	"fmt"

	"Mist/internal/logger"
)

// DynamicFieldPage is one page of child objects under a parent.
type DynamicFieldPage struct {
	ObjectIDs   []ObjectID // ObjectIDs are the child field objects
	NextCursor  *string    // NextCursor resumes after the last entry
	HasNextPage bool       // HasNextPage is true while more entries remain
}

// DynamicFields lists one page of dynamic fields under parent.
func (c *Client) DynamicFields(ctx context.Context, parent ObjectID, cursor *string, limit int) (*DynamicFieldPage, error) {
	var resp struct {
		Data []struct {
			ObjectID ObjectID `json:"objectId"`
		} `json:"data"`
		NextCursor  *string `json:"nextCursor"`
		HasNextPage bool    `json:"hasNextPage"`
	}

	var cur any
	if cursor != nil {
		cur = *cursor
	}

	if err := c.call(ctx, "suix_getDynamicFields", []any{parent.String(), cur, limit}, &resp); err != nil {
		return nil, err
	}

	page := &DynamicFieldPage{NextCursor: resp.NextCursor, HasNextPage: resp.HasNextPage}
	for _, d := range resp.Data {
		page.ObjectIDs = append(page.ObjectIDs, d.ObjectID)
	}

	return page, nil
}

// Deposits enumerates and decodes every deposit stored under table.
// Entries that are not deposits, or that are removed between listing and
// fetching, are skipped.
func (c *Client) Deposits(ctx context.Context, table ObjectID) ([]*Deposit, error) {
	var (
		out    []*Deposit
		cursor *string
	)

	for {
		page, err := c.DynamicFields(ctx, table, cursor, eventPageSize)
		if err != nil {
			return nil, fmt.Errorf("list deposits:\n%w", err)
		}

		for _, id := range page.ObjectIDs {
			obj, err := c.GetObject(ctx, id)
			if errors.Is(err, ErrObjectNotFound) {
				logger.Debug("deposit removed during listing", "deposit", id.Short())
				continue
			}

			if err != nil {
				return nil, fmt.Errorf("fetch deposit %s:\n%w", id, err)
			}

			d, err := DecodeDeposit(obj)
			if err != nil {
				continue
			}

			out = append(out, d)
		}

		if !page.HasNextPage || page.NextCursor == nil || len(page.ObjectIDs) == 0 {
			return out, nil
		}

		cursor = page.NextCursor
	}
}
