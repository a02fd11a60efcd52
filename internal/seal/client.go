package seal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	blst "github.com/supranational/blst/bindings/go"

	"Mist/internal/ledger"
	"Mist/internal/logger"
	"Mist/internal/wallet"
)

// DefaultRequestTimeout bounds each key-server request.
const DefaultRequestTimeout = 10 * time.Second

// maxResponseSize bounds a key server's response body.
const maxResponseSize = 1 << 20

var (
	errKeyServerStatus = errors.New("key server rejected request")
	errKeyMissing      = errors.New("key server returned no key for identity")
	errKeyInvalid      = errors.New("key server returned an invalid user secret key")
)

// KeyServer is one configured key server.
type KeyServer struct {
	ObjectID  ledger.ObjectID // ObjectID identifies the key server on the ledger
	URL       string          // URL is the server's base URL
	PublicKey []byte          // PublicKey is the compressed G2 master public key
}

// Observer receives the outcome of every key-server request.
type Observer interface {
	KeyServerResponse(server ledger.ObjectID, err error)
}

// ClientConfig configures a decryption client.
type ClientConfig struct {
	Servers        []KeyServer     // Servers are the configured key servers
	PackageID      ledger.ObjectID // PackageID is the package whose policy guards decryption
	Keypair        *wallet.Keypair // Keypair certifies session keys
	SessionTTL     uint16          // SessionTTL is the certificate lifetime in minutes
	RequestTimeout time.Duration   // RequestTimeout bounds each key-server request
	HTTPClient     *http.Client    // HTTPClient is used for key-server requests
	Observer       Observer        // Observer is optional
	MinThreshold   int             // MinThreshold rejects objects encrypted for fewer shares
}

// Client decrypts encrypted objects using a quorum of key servers.
type Client struct {
	servers  map[ledger.ObjectID]server // servers are the configured key servers by ID
	pkg      ledger.ObjectID            // pkg is the policy package
	keypair  *wallet.Keypair            // keypair certifies session keys
	ttl      uint16                     // ttl is the session lifetime in minutes
	timeout  time.Duration              // timeout bounds each request
	http     *http.Client               // http sends requests
	observer Observer                   // observer is optional
	minShare int                        // minShare is the lowest accepted object threshold
	now      func() time.Time           // now is the clock

	mu      sync.Mutex // mu guards session
	session *Session   // session is reused until it nears expiry
}

type server struct {
	url    string
	public *blst.P2Affine
}

// NewClient validates the configuration and creates a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Keypair == nil {
		return nil, errors.New("seal client requires a keypair")
	}

	if len(cfg.Servers) == 0 {
		return nil, errors.New("seal client requires at least one key server")
	}

	c := &Client{
		servers:  make(map[ledger.ObjectID]server, len(cfg.Servers)),
		pkg:      cfg.PackageID,
		keypair:  cfg.Keypair,
		ttl:      cfg.SessionTTL,
		timeout:  cfg.RequestTimeout,
		http:     cfg.HTTPClient,
		observer: cfg.Observer,
		minShare: cfg.MinThreshold,
		now:      time.Now,
	}

	if c.ttl == 0 {
		c.ttl = DefaultSessionTTL
	}

	if c.timeout <= 0 {
		c.timeout = DefaultRequestTimeout
	}

	if c.http == nil {
		c.http = &http.Client{}
	}

	for _, s := range cfg.Servers {
		pk, err := parseG2(s.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("key server %s:\n%w", s.ObjectID, err)
		}

		if _, dup := c.servers[s.ObjectID]; dup {
			return nil, fmt.Errorf("key server %s configured twice", s.ObjectID)
		}

		c.servers[s.ObjectID] = server{url: strings.TrimRight(s.URL, "/"), public: pk}
	}

	return c, nil
}

// fetchResult is one server's verified user secret key, or the reason it is missing.
type fetchResult struct {
	server ledger.ObjectID
	usk    *blst.P1Affine
	err    error
}

// Decrypt fetches user secret keys for obj from the key servers concurrently
// and opens it once the verified keys cover Threshold shares. Failing servers
// are logged and skipped; too few shares yield ErrDecryptionUnavailable.
func (c *Client) Decrypt(ctx context.Context, obj *EncryptedObject) ([]byte, error) {
	if obj.PackageID != c.pkg {
		return nil, fmt.Errorf("%w: package %s, want %s", ErrMalformedObject, obj.PackageID, c.pkg)
	}

	if int(obj.Threshold) < c.minShare {
		return nil, fmt.Errorf("%w: threshold %d below configured %d", ErrMalformedObject, obj.Threshold, c.minShare)
	}

	// A server listed more than once holds one share per listing.
	weights := make(map[ledger.ObjectID]int, len(obj.Services))
	reachable := 0

	var targets []ledger.ObjectID
	for _, s := range obj.Services {
		if _, ok := c.servers[s.ObjectID]; !ok {
			continue
		}

		if weights[s.ObjectID] == 0 {
			targets = append(targets, s.ObjectID)
		}

		weights[s.ObjectID]++
		reachable++
	}

	if reachable < int(obj.Threshold) {
		return nil, fmt.Errorf("%w: %d configured shares for threshold %d", ErrDecryptionUnavailable, reachable, obj.Threshold)
	}

	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	transport, err := GenerateElGamalKey()
	if err != nil {
		return nil, err
	}

	req := session.Request(PolicyTransaction(c.pkg, obj.ID), transport)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal fetch request:\n%w", err)
	}

	requestID := uuid.NewString()
	log := logger.With("request", requestID, "id", base64.StdEncoding.EncodeToString(obj.ID))
	full := obj.FullID()

	// Outstanding requests are abandoned once the threshold is reached.
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan fetchResult, len(targets))

	var wg sync.WaitGroup

	for _, id := range targets {
		wg.Add(1)

		go func(id ledger.ObjectID) {
			defer wg.Done()

			usk, err := c.fetchKey(fetchCtx, c.servers[id], requestID, body, transport, obj.ID, full)
			resultCh <- fetchResult{server: id, usk: usk, err: err}
		}(id)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	keys := make(map[ledger.ObjectID]*blst.P1Affine, len(targets))
	shares := 0

	for res := range resultCh {
		if c.observer != nil {
			c.observer.KeyServerResponse(res.server, res.err)
		}

		if res.err != nil {
			log.Warn("key server unavailable", "server", res.server.Short(), "error", res.err)
			continue
		}

		keys[res.server] = res.usk
		shares += weights[res.server]

		if shares >= int(obj.Threshold) {
			break
		}
	}

	if shares < int(obj.Threshold) {
		return nil, fmt.Errorf("%w: %d of %d shares", ErrDecryptionUnavailable, shares, obj.Threshold)
	}

	log.Debug("user secret keys collected", slog.Int("keys", len(keys)), slog.Int("shares", shares))

	return DecryptWithKeys(obj, keys)
}

// currentSession returns the cached session, certifying a new one once the
// cached one is no longer valid.
func (c *Client) currentSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.session != nil && c.session.Valid(now) {
		return c.session, nil
	}

	session, err := NewSession(c.keypair, c.pkg, c.ttl, now)
	if err != nil {
		return nil, err
	}

	logger.Debug("seal session certified", "expires", session.expires)
	c.session = session

	return session, nil
}

// fetchKey performs one fetch_key request and returns the verified user secret key.
func (c *Client) fetchKey(ctx context.Context, s server, requestID string, body []byte, transport *ElGamalKey, id, full []byte) (*blst.P1Affine, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/v1/fetch_key", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request:\n%w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Client-Sdk-Version", ProtocolVersion)
	httpReq.Header.Set("Request-Id", requestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("POST %s:\n%w", s.url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", errKeyServerStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var fr FetchKeyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode response:\n%w", err)
	}

	want := base64.StdEncoding.EncodeToString(id)

	for _, k := range fr.DecryptionKeys {
		if k.ID != want {
			continue
		}

		c1, err1 := base64.StdEncoding.DecodeString(k.EncryptedKey[0])
		c2, err2 := base64.StdEncoding.DecodeString(k.EncryptedKey[1])

		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: encoding", errKeyInvalid)
		}

		usk, err := transport.Decrypt(c1, c2)
		if err != nil {
			return nil, fmt.Errorf("%w:\n%w", errKeyInvalid, err)
		}

		if !VerifyUserKey(usk, full, s.public) {
			return nil, fmt.Errorf("%w: pairing check failed", errKeyInvalid)
		}

		return usk, nil
	}

	return nil, errKeyMissing
}
