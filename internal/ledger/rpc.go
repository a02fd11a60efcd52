package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	// ErrTransport wraps failures to reach the RPC endpoint. These are transient.
	ErrTransport = errors.New("ledger transport failure")

	// ErrObjectNotFound is returned when an object does not exist or was deleted.
	ErrObjectNotFound = errors.New("object not found")

	// ErrIntentGone is returned when the intent object itself no longer exists.
	// Errors carrying it also carry ErrObjectNotFound.
	ErrIntentGone = errors.New("intent no longer on ledger")

	// ErrNotShared is returned when a shared object was expected.
	ErrNotShared = errors.New("object is not shared")

	// ErrUnexpectedShape is returned when a response cannot be decoded into the expected type.
	ErrUnexpectedShape = errors.New("unexpected ledger response shape")
)

// RPCError is an error object returned by the JSON-RPC endpoint.
type RPCError struct {
	Code    int    `json:"code"`    // Code is the JSON-RPC error code
	Message string `json:"message"` // Message is the server's description
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client talks to a ledger full node over JSON-RPC 2.0.
type Client struct {
	url    string        // url is the JSON-RPC endpoint
	http   *http.Client  // http is the underlying HTTP client
	nextID atomic.Uint64 // nextID numbers requests
}

// NewClient creates a client. A nil httpClient uses a 30 second timeout.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{url: url, http: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s:\n%w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request:\n%w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w:\n%w", method, ErrTransport, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: status %d", method, ErrTransport, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%s: %w:\n%w", method, ErrTransport, err)
	}

	if rr.Error != nil {
		return fmt.Errorf("%s:\n%w", method, rr.Error)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("%s: %w:\n%w", method, ErrUnexpectedShape, err)
	}

	return nil
}

// U64 decodes a JSON number or a decimal string into a uint64.
type U64 uint64

// UnmarshalJSON accepts 42 and "42".
func (u *U64) UnmarshalJSON(data []byte) error {
	v, err := decodeU64(data)
	if err != nil {
		return err
	}

	*u = U64(v)

	return nil
}

func decodeU64(data []byte) (uint64, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: u64 %q", ErrUnexpectedShape, s)
		}

		return v, nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("%w: u64 %s", ErrUnexpectedShape, data)
	}

	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: u64 %s", ErrUnexpectedShape, data)
	}

	return v, nil
}
