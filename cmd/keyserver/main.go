// Command keyserver runs a development key server that issues identity keys
// for policy-approved fetch requests.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Mist/internal/keyserver"
	"Mist/internal/ledger"
	"Mist/internal/logger"
	"Mist/internal/seal"
)

// Config holds the key server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string

	// MasterKeyPath is the hex master secret file (generated if missing).
	MasterKeyPath string

	// ObjectID is the key server's on-ledger identifier.
	ObjectID string

	// PackageID is the package whose seal_approve functions gate access.
	PackageID string

	// RPCURL is the ledger endpoint used to dry-run policies. Empty approves every request.
	RPCURL string

	// LogLevel is debug, info, warn or error.
	LogLevel string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", ":2024", "HTTP listen address")
	flag.StringVar(&cfg.MasterKeyPath, "master-key", "./master.key", "Master secret path (generates new if missing)")
	flag.StringVar(&cfg.ObjectID, "object-id", "", "Key server object ID")
	flag.StringVar(&cfg.PackageID, "package-id", "", "Policy package ID")
	flag.StringVar(&cfg.RPCURL, "rpc", "", "Ledger JSON-RPC URL for policy checks (empty allows all)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	return cfg
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger.Init(level)

	objectID, err := ledger.ParseObjectID(cfg.ObjectID)
	if err != nil {
		return fmt.Errorf("-object-id:\n%w", err)
	}

	pkg, err := ledger.ParseObjectID(cfg.PackageID)
	if err != nil {
		return fmt.Errorf("-package-id:\n%w", err)
	}

	master, err := loadOrGenerateMasterKey(cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("load master key:\n%w", err)
	}

	var policy keyserver.PolicyChecker = keyserver.AllowAll{}

	if cfg.RPCURL != "" {
		policy = keyserver.LedgerPolicy{Ledger: ledger.NewClient(cfg.RPCURL, &http.Client{Timeout: 10 * time.Second})}
	} else {
		logger.Warn("no -rpc given; every well-formed request is approved")
	}

	srv := keyserver.New(master, objectID, pkg, policy)

	logger.Info("starting key server",
		"object", objectID.Short(),
		"package", pkg.Short(),
		"listen", cfg.Listen,
		"public_key", hex.EncodeToString(srv.MasterPublicKey()),
	)

	srv.Start(cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return srv.Stop()
}

// loadOrGenerateMasterKey loads a hex master secret or creates and saves one.
func loadOrGenerateMasterKey(path string) (*seal.MasterKey, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generateAndSaveMasterKey(path)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file:\n%w", err)
	}

	return seal.ParseMasterKey(raw)
}

// generateAndSaveMasterKey creates a new master key and saves it to path.
func generateAndSaveMasterKey(path string) (*seal.MasterKey, error) {
	mk, err := seal.GenerateMasterKey(nil)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, []byte(hex.EncodeToString(mk.Bytes())+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	logger.Warn("generated new master key", "path", path)

	return mk, nil
}
