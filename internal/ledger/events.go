package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Mist/internal/logger"
)

// EventCursor positions an event query. The zero value starts from the beginning.
type EventCursor struct {
	TxDigest string `json:"txDigest"` // TxDigest is the transaction that emitted the event
	EventSeq string `json:"eventSeq"` // EventSeq is the event's index within the transaction
}

// IsZero reports whether the cursor is unset.
func (c EventCursor) IsZero() bool {
	return c.TxDigest == ""
}

// Event is one emitted Move event.
type Event struct {
	ID         EventCursor     `json:"id"`         // ID doubles as the cursor after this event
	Type       string          `json:"type"`       // Type is the Move event type
	ParsedJSON json.RawMessage `json:"parsedJson"` // ParsedJSON holds the event fields
}

// EventPage is one page of an event query.
type EventPage struct {
	Events      []Event      // Events in ascending order
	NextCursor  *EventCursor // NextCursor resumes after the last event
	HasNextPage bool         // HasNextPage is true while more events remain
}

// eventPageSize bounds how many events are requested per page.
const eventPageSize = 50

// QueryEvents fetches one ascending page of events with the given Move type.
func (c *Client) QueryEvents(ctx context.Context, eventType string, cursor EventCursor, limit int) (*EventPage, error) {
	var cur any
	if !cursor.IsZero() {
		cur = cursor
	}

	var resp struct {
		Data        []Event      `json:"data"`
		NextCursor  *EventCursor `json:"nextCursor"`
		HasNextPage bool         `json:"hasNextPage"`
	}

	filter := map[string]string{"MoveEventType": eventType}
	if err := c.call(ctx, "suix_queryEvents", []any{filter, cur, limit, false}, &resp); err != nil {
		return nil, err
	}

	return &EventPage{Events: resp.Data, NextCursor: resp.NextCursor, HasNextPage: resp.HasNextPage}, nil
}

// IntentEvents walks every page after cursor and returns the announced intent
// IDs in discovery order, along with the cursor after the last event seen.
func (c *Client) IntentEvents(ctx context.Context, eventType string, cursor EventCursor) ([]ObjectID, EventCursor, error) {
	var ids []ObjectID

	for {
		page, err := c.QueryEvents(ctx, eventType, cursor, eventPageSize)
		if err != nil {
			return ids, cursor, fmt.Errorf("query events:\n%w", err)
		}

		for _, ev := range page.Events {
			var fields struct {
				IntentID ObjectID `json:"intent_id"`
			}

			cursor = ev.ID

			if err := json.Unmarshal(ev.ParsedJSON, &fields); err != nil || fields.IntentID.IsZero() {
				logger.Error("skipping undecodable intent event", "tx", ev.ID.TxDigest, "seq", ev.ID.EventSeq, "error", err)
				continue
			}

			ids = append(ids, fields.IntentID)
		}

		if page.NextCursor != nil {
			cursor = *page.NextCursor
		}

		if !page.HasNextPage || len(page.Events) == 0 {
			return ids, cursor, nil
		}
	}
}

// GetIntent fetches and decodes one intent. A consumed intent no longer exists
// and yields ErrIntentGone. An intent whose fields cannot be decoded is
// returned with DecodeErr set so that it is reported rather than hidden.
func (c *Client) GetIntent(ctx context.Context, id ObjectID) (*Intent, error) {
	obj, err := c.GetObject(ctx, id)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("%w:\n%w", ErrIntentGone, err)
	}

	if err != nil {
		return nil, err
	}

	intent, err := DecodeIntent(obj)
	if err != nil {
		return &Intent{ID: id, DecodeErr: err}, nil
	}

	return intent, nil
}
