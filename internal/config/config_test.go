package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Mist/internal/ledger"
	"Mist/internal/route"
	"Mist/internal/settle"
	"Mist/internal/wallet"
)

var testPublicKey = strings.Repeat("ab", 96)

func validJSON() string {
	return `{
		"rpc_url": "http://127.0.0.1:9000",
		"package_id": "0x11",
		"registry_id": "0x12",
		"pool_id": "0x13",
		"deposits_table_id": "0x14",
		"key_servers": [
			{"object_id": "0x21", "url": "http://ks1", "public_key": "` + testPublicKey + `"},
			{"object_id": "0x22", "url": "http://ks2", "public_key": "0x` + testPublicKey + `"}
		],
		"threshold": 2,
		"poll_interval": "2s",
		"exchange": {"package_id": "0x31", "pool_registry_id": "0x32", "versioned_id": "0x33"}
	}`
}

// =============================================================================
// Parse
// =============================================================================

// TestParseDefaults verifies omitted fields take their defaults.
func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validJSON()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if time.Duration(cfg.PollInterval) != 2*time.Second {
		t.Errorf("poll interval = %v", time.Duration(cfg.PollInterval))
	}

	if cfg.NativeCoinType != route.NativeCoinType {
		t.Errorf("native = %q", cfg.NativeCoinType)
	}

	if cfg.Exchange.FeeRate != route.DefaultFeeRate || cfg.Exchange.MinAmountOut != 1 {
		t.Errorf("exchange = %+v", cfg.Exchange)
	}

	if cfg.GasBudget != settle.DefaultGasBudget {
		t.Errorf("gas budget = %d", cfg.GasBudget)
	}

	if !cfg.OwnerBinding() {
		t.Error("owner binding should default on")
	}

	if !cfg.RoutingEnabled() {
		t.Error("routing should be enabled")
	}

	if !strings.HasSuffix(cfg.IntentEventType, "::mist_protocol::SwapIntentCreated") {
		t.Errorf("event type = %q", cfg.IntentEventType)
	}

	if objs := cfg.SettleObjects(); objs.Clock != ledger.ClockID || objs.Pool != ledger.MustObjectID("0x13") {
		t.Errorf("objects = %+v", objs)
	}

	servers := cfg.SealServers()
	if len(servers) != 2 || len(servers[1].PublicKey) != 96 || servers[0].URL != "http://ks1" {
		t.Errorf("servers = %+v", servers)
	}

	r := cfg.Router()
	if r.SwapTTL != route.DefaultSwapTTL || r.NativeType != route.NativeCoinType || r.PassthroughOnly {
		t.Errorf("router = %+v", r)
	}
}

// TestParseWithoutExchange verifies cross-asset routing is disabled without an exchange.
func TestParseWithoutExchange(t *testing.T) {
	raw := strings.Replace(validJSON(), `"exchange": {"package_id": "0x31", "pool_registry_id": "0x32", "versioned_id": "0x33"}`, `"status_addr": ":8080"`, 1)

	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.RoutingEnabled() || !cfg.Router().PassthroughOnly {
		t.Fatal("routing should be disabled")
	}
}

// TestParsePriceSlippage verifies the traded pool reaches the settlement objects.
func TestParsePriceSlippage(t *testing.T) {
	raw := strings.Replace(validJSON(), `"versioned_id": "0x33"`, `"versioned_id": "0x33", "pool_id": "0x34", "price_slippage_bps": 50`, 1)

	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !cfg.PriceSlippage() || cfg.SettleObjects().ExchangePool != ledger.MustObjectID("0x34") {
		t.Fatalf("exchange = %+v", cfg.Exchange)
	}

	cfg, _ = Parse([]byte(validJSON()))
	if cfg.PriceSlippage() {
		t.Fatal("slippage should default off")
	}
}

// TestParseBindOwnerOff verifies an explicit false is kept and the deposits table becomes optional.
func TestParseBindOwnerOff(t *testing.T) {
	raw := strings.Replace(validJSON(), `"deposits_table_id": "0x14",`, `"bind_owner": false,`, 1)

	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.OwnerBinding() {
		t.Fatal("owner binding should be off")
	}
}

// TestParseInvalid verifies validation failures are reported as ErrInvalid.
func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		message string
	}{
		{"bad url", `"http://127.0.0.1:9000"`, `"ftp://x"`, "rpc_url"},
		{"threshold", `"threshold": 2`, `"threshold": 3`, "threshold"},
		{"missing pool", `"pool_id": "0x13",`, ``, "pool_id"},
		{"short key", `"0x` + testPublicKey + `"`, `"abcd"`, "public_key"},
		{"duplicate server", `"object_id": "0x22"`, `"object_id": "0x21"`, "duplicates"},
		{"fee tier", `"versioned_id": "0x33"`, `"versioned_id": "0x33", "fee_rate": 42`, "fee_rate"},
		{"unknown field", `"threshold": 2`, `"threshold": 2, "thresold": 2`, "unknown field"},
		{"bad duration", `"2s"`, `"soon"`, "duration"},
		{"slippage without pool", `"versioned_id": "0x33"`, `"versioned_id": "0x33", "price_slippage_bps": 50`, "pool_id"},
		{"slippage range", `"versioned_id": "0x33"`, `"versioned_id": "0x33", "pool_id": "0x34", "price_slippage_bps": 10001`, "price_slippage_bps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := strings.Replace(validJSON(), tt.from, tt.to, 1)

			_, err := Parse([]byte(raw))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}

			if !strings.Contains(err.Error(), tt.message) {
				t.Fatalf("error %q does not mention %q", err, tt.message)
			}
		})
	}
}

// TestLoadMissingFile verifies read errors are wrapped.
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

// =============================================================================
// Keys
// =============================================================================

// TestLoadOrGenerateKey verifies a generated key is saved and reloaded.
func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processor.key")

	first, created, err := LoadOrGenerateKey(path)
	if err != nil || !created {
		t.Fatalf("generate: created=%v err=%v", created, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}

	second, created, err := LoadOrGenerateKey(path)
	if err != nil || created {
		t.Fatalf("reload: created=%v err=%v", created, err)
	}

	if first.Address() != second.Address() {
		t.Fatal("reloaded key differs")
	}
}

// TestLoadRawSeed verifies raw 32-byte seed files are accepted.
func TestLoadRawSeed(t *testing.T) {
	seed := make([]byte, 32)
	seed[0] = 7

	path := filepath.Join(t.TempDir(), "seed.key")
	os.WriteFile(path, seed, 0600)

	kp, _, err := LoadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want, _ := wallet.KeypairFromSeed(seed)
	if kp.Address() != want.Address() {
		t.Fatal("address mismatch")
	}

	os.WriteFile(path, []byte("garbage"), 0600)

	if _, _, err := LoadOrGenerateKey(path); !errors.Is(err, wallet.ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
}
