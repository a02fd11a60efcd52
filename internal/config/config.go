// Package config loads and validates the processor configuration file.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"Mist/internal/ledger"
	"Mist/internal/route"
	"Mist/internal/seal"
	"Mist/internal/settle"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid configuration")

const (
	defaultPollInterval = 5 * time.Second
	defaultJournalPath  = "./journal"
	defaultEventType    = "::mist_protocol::SwapIntentCreated"
)

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

// UnmarshalJSON accepts "5s" style strings or integer nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string or integer: %s", data)
		}

		*d = Duration(n)

		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// KeyServer is one configured key server.
type KeyServer struct {
	ObjectID  ledger.ObjectID `json:"object_id"`  // ObjectID identifies the key server on the ledger
	URL       string          `json:"url"`        // URL is the server's base URL
	PublicKey string          `json:"public_key"` // PublicKey is the hex G2 master public key
}

// Exchange configures the concentrated-liquidity exchange used for routed swaps.
type Exchange struct {
	PackageID        ledger.ObjectID `json:"package_id"`         // PackageID is the exchange package
	PoolRegistryID   ledger.ObjectID `json:"pool_registry_id"`   // PoolRegistryID is the exchange's pool registry
	VersionedID      ledger.ObjectID `json:"versioned_id"`       // VersionedID is the exchange's versioned object
	ClockID          ledger.ObjectID `json:"clock_id"`           // ClockID is the system clock object
	PoolID           ledger.ObjectID `json:"pool_id"`            // PoolID is the traded pool, read for slippage limits
	FeeRate          uint64          `json:"fee_rate"`           // FeeRate is the pool fee tier
	MinAmountOut     uint64          `json:"min_amount_out"`     // MinAmountOut is the output floor for routed swaps
	PriceSlippageBps uint64          `json:"price_slippage_bps"` // PriceSlippageBps bounds the price move; zero uses the exchange boundary
	SwapDeadline     Duration        `json:"swap_deadline"`      // SwapDeadline caps the exchange deadline after submission
}

// Config is the processor configuration. It is immutable after Load.
type Config struct {
	RPCURL          string          `json:"rpc_url"`           // RPCURL is the ledger JSON-RPC endpoint
	PollInterval    Duration        `json:"poll_interval"`     // PollInterval is the time between poll cycles
	PackageID       ledger.ObjectID `json:"package_id"`        // PackageID is the privacy protocol package
	RegistryID      ledger.ObjectID `json:"registry_id"`       // RegistryID is the nullifier registry
	PoolID          ledger.ObjectID `json:"pool_id"`           // PoolID is the liquidity pool
	DepositsTableID ledger.ObjectID `json:"deposits_table_id"` // DepositsTableID holds encrypted deposit records
	IntentEventType string          `json:"intent_event_type"` // IntentEventType is the Move type of intent creation events
	NativeCoinType  string          `json:"native_coin_type"`  // NativeCoinType is the only routed input asset
	KeyServers      []KeyServer     `json:"key_servers"`       // KeyServers are the decryption key servers
	Threshold       int             `json:"threshold"`         // Threshold is the lowest object threshold accepted
	RequestTimeout  Duration        `json:"request_timeout"`   // RequestTimeout bounds each key-server request
	SessionTTLMin   uint16          `json:"session_ttl_min"`   // SessionTTLMin is the session certificate lifetime
	Exchange        Exchange        `json:"exchange"`          // Exchange configures routed swaps
	GasBudget       uint64          `json:"gas_budget"`        // GasBudget is the settlement gas budget
	BindOwner       *bool           `json:"bind_owner"`        // BindOwner requires the signer to own the deposit
	JournalPath     string          `json:"journal_path"`      // JournalPath is the journal directory
	StatusAddr      string          `json:"status_addr"`       // StatusAddr is the status API listen address, empty to disable
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config:\n%w", err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates configuration JSON.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}

	if c.NativeCoinType == "" {
		c.NativeCoinType = route.NativeCoinType
	}

	if c.IntentEventType == "" {
		c.IntentEventType = c.PackageID.String() + defaultEventType
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(seal.DefaultRequestTimeout)
	}

	if c.SessionTTLMin == 0 {
		c.SessionTTLMin = seal.DefaultSessionTTL
	}

	if c.Exchange.ClockID.IsZero() {
		c.Exchange.ClockID = ledger.ClockID
	}

	if c.Exchange.FeeRate == 0 {
		c.Exchange.FeeRate = route.DefaultFeeRate
	}

	if c.Exchange.MinAmountOut == 0 {
		c.Exchange.MinAmountOut = 1
	}

	if c.Exchange.SwapDeadline == 0 {
		c.Exchange.SwapDeadline = Duration(route.DefaultSwapTTL)
	}

	if c.GasBudget == 0 {
		c.GasBudget = settle.DefaultGasBudget
	}

	if c.BindOwner == nil {
		bind := true
		c.BindOwner = &bind
	}

	if c.JournalPath == "" {
		c.JournalPath = defaultJournalPath
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !strings.HasPrefix(c.RPCURL, "http://") && !strings.HasPrefix(c.RPCURL, "https://") {
		fail("rpc_url must be an http(s) URL, got %q", c.RPCURL)
	}

	required := []struct {
		name string
		id   ledger.ObjectID
	}{
		{"package_id", c.PackageID},
		{"registry_id", c.RegistryID},
		{"pool_id", c.PoolID},
	}

	for _, r := range required {
		if r.id.IsZero() {
			fail("%s is required", r.name)
		}
	}

	if c.OwnerBinding() && c.DepositsTableID.IsZero() {
		fail("deposits_table_id is required when bind_owner is set")
	}

	if len(c.KeyServers) == 0 {
		fail("at least one key server is required")
	}

	seen := make(map[ledger.ObjectID]bool, len(c.KeyServers))

	for i, ks := range c.KeyServers {
		if ks.ObjectID.IsZero() || ks.URL == "" {
			fail("key_servers[%d] needs object_id and url", i)
		}

		if seen[ks.ObjectID] {
			fail("key_servers[%d] duplicates %s", i, ks.ObjectID)
		}

		seen[ks.ObjectID] = true

		if pk, err := hex.DecodeString(strings.TrimPrefix(ks.PublicKey, "0x")); err != nil || len(pk) != 96 {
			fail("key_servers[%d].public_key must be 96 hex-encoded bytes", i)
		}
	}

	if c.Threshold < 1 || c.Threshold > len(c.KeyServers) {
		fail("threshold %d must be between 1 and %d", c.Threshold, len(c.KeyServers))
	}

	if c.RoutingEnabled() && (c.Exchange.PoolRegistryID.IsZero() || c.Exchange.VersionedID.IsZero()) {
		fail("exchange needs pool_registry_id and versioned_id")
	}

	if c.Exchange.PriceSlippageBps > 0 && c.Exchange.PoolID.IsZero() {
		fail("exchange.price_slippage_bps needs exchange.pool_id")
	}

	if c.Exchange.PriceSlippageBps > 10_000 {
		fail("exchange.price_slippage_bps %d exceeds 10000", c.Exchange.PriceSlippageBps)
	}

	if _, err := route.NormalizeCoinType(c.NativeCoinType); err != nil {
		fail("native_coin_type: %v", err)
	}

	if _, err := route.TickSpacing(c.Exchange.FeeRate); err != nil {
		fail("exchange.fee_rate: %v", err)
	}

	if c.PollInterval < Duration(100*time.Millisecond) {
		fail("poll_interval %s is too short", time.Duration(c.PollInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n%w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

// OwnerBinding reports whether deposits must be owned by the intent signer.
func (c *Config) OwnerBinding() bool {
	return c.BindOwner == nil || *c.BindOwner
}

// RoutingEnabled reports whether an exchange is configured for cross-asset swaps.
func (c *Config) RoutingEnabled() bool {
	return !c.Exchange.PackageID.IsZero()
}

// SealServers converts the key-server list for the decryption client.
func (c *Config) SealServers() []seal.KeyServer {
	out := make([]seal.KeyServer, len(c.KeyServers))

	for i, ks := range c.KeyServers {
		pk, _ := hex.DecodeString(strings.TrimPrefix(ks.PublicKey, "0x"))
		out[i] = seal.KeyServer{ObjectID: ks.ObjectID, URL: ks.URL, PublicKey: pk}
	}

	return out
}

// SettleObjects returns the objects settlement transactions reference.
func (c *Config) SettleObjects() settle.Objects {
	return settle.Objects{
		Package:          c.PackageID,
		Registry:         c.RegistryID,
		Pool:             c.PoolID,
		ExchangePackage:  c.Exchange.PackageID,
		ExchangeRegistry: c.Exchange.PoolRegistryID,
		ExchangeVersion:  c.Exchange.VersionedID,
		ExchangePool:     c.Exchange.PoolID,
		Clock:            c.Exchange.ClockID,
	}
}

// PriceSlippage reports whether routed swaps are bounded by the pool's current price.
func (c *Config) PriceSlippage() bool {
	return c.RoutingEnabled() && c.Exchange.PriceSlippageBps > 0
}

// Router returns the swap router for this configuration.
func (c *Config) Router() *route.Router {
	return &route.Router{
		NativeType:      c.NativeCoinType,
		FeeRate:         c.Exchange.FeeRate,
		MinAmountOut:    c.Exchange.MinAmountOut,
		SwapTTL:         time.Duration(c.Exchange.SwapDeadline),
		PassthroughOnly: !c.RoutingEnabled(),
	}
}
