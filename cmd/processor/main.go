package main

import (
	"fmt"
	"os"
	"time"

	"Mist/internal/config"
	"Mist/internal/journal"
	"Mist/internal/logger"
	"Mist/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	flags := parseFlags()

	level, err := logger.ParseLevel(flags.LogLevel)
	if err != nil {
		return err
	}

	logger.Init(level)

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config:\n%w", err)
	}

	if flags.ExportPath != "" {
		return exportJournal(cfg.JournalPath, flags.ExportPath)
	}

	key, created, err := config.LoadOrGenerateKey(flags.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	if created {
		logger.Warn("generated new processor key; fund its address before settling", "path", flags.KeyPath)
	}

	p, err := NewProcessor(cfg, key)
	if err != nil {
		return fmt.Errorf("create processor:\n%w", err)
	}

	printStartupInfo(cfg, key)

	return p.Run()
}

// printStartupInfo displays the processor configuration at startup.
func printStartupInfo(cfg *config.Config, key *wallet.Keypair) {
	logger.Info("starting Mist processor",
		"address", key.Address(),
		"rpc", cfg.RPCURL,
		"package", cfg.PackageID.Short(),
		"key_servers", len(cfg.KeyServers),
		"threshold", cfg.Threshold,
		"owner_binding", cfg.OwnerBinding(),
		"interval", time.Duration(cfg.PollInterval),
		"journal", cfg.JournalPath,
	)

	for _, ks := range cfg.KeyServers {
		logger.Info("key server", "object", ks.ObjectID.Short(), "url", ks.URL)
	}

	if cfg.RoutingEnabled() {
		logger.Info("routed swaps enabled",
			"exchange", cfg.Exchange.PackageID.Short(),
			"fee_rate", cfg.Exchange.FeeRate,
			"min_amount_out", cfg.Exchange.MinAmountOut,
		)

		if cfg.Exchange.MinAmountOut <= 1 {
			logger.Warn("min_amount_out is at most 1; routed swaps accept any price")
		}
	}
}

// exportJournal writes a compressed journal snapshot to path.
func exportJournal(journalPath, path string) error {
	j, err := journal.Open(journalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create export:\n%w", err)
	}

	if err := j.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("export journal:\n%w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close export:\n%w", err)
	}

	logger.Info("journal exported", "path", path)

	return nil
}
