package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"Mist/internal/api"
	"Mist/internal/config"
	"Mist/internal/journal"
	"Mist/internal/ledger"
	"Mist/internal/logger"
	"Mist/internal/processor"
	"Mist/internal/seal"
	"Mist/internal/settle"
	"Mist/internal/wallet"
)

// Processor owns the long-lived components of a running processor.
type Processor struct {
	cfg     *config.Config
	journal *journal.Journal
	loop    *processor.Loop
	api     *api.Server
}

// NewProcessor wires every component from the configuration.
func NewProcessor(cfg *config.Config, key *wallet.Keypair) (*Processor, error) {
	p := &Processor{cfg: cfg}

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	p.journal = j

	chain := ledger.NewClient(cfg.RPCURL, &http.Client{Timeout: 30 * time.Second})
	metrics := processor.NewMetrics()

	decrypter, err := seal.NewClient(seal.ClientConfig{
		Servers:        cfg.SealServers(),
		PackageID:      cfg.PackageID,
		Keypair:        key,
		SessionTTL:     cfg.SessionTTLMin,
		RequestTimeout: time.Duration(cfg.RequestTimeout),
		Observer:       metrics,
		MinThreshold:   cfg.Threshold,
	})
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("create seal client:\n%w", err)
	}

	builder := settle.NewBuilder(chain, cfg.SettleObjects(), key.Address(), cfg.GasBudget)
	if cfg.PriceSlippage() {
		builder.SetPriceSlippage(chain, cfg.Exchange.PriceSlippageBps)
	}
	settler := settle.NewSettler(builder, settle.NewSubmitter(key, chain))

	var owners processor.OwnerChecker
	if cfg.OwnerBinding() {
		owners = processor.NewOwnerResolver(chain, cfg.DepositsTableID, decrypter)
	}

	pipeline := processor.NewPipeline(decrypter, cfg.Router(), settler, owners)

	p.loop = processor.NewLoop(processor.LoopConfig{
		Source:    chain,
		Journal:   j,
		Pipeline:  pipeline,
		Metrics:   metrics,
		EventType: cfg.IntentEventType,
		Interval:  time.Duration(cfg.PollInterval),
	})

	if cfg.StatusAddr != "" {
		info := api.Info{
			Address:    key.Address().String(),
			PackageID:  cfg.PackageID.String(),
			KeyServers: len(cfg.KeyServers),
			Threshold:  cfg.Threshold,
			OwnerBound: cfg.OwnerBinding(),
		}

		p.api = api.New(cfg.StatusAddr, info, p.loop, metrics.Registry(), 10*time.Duration(cfg.PollInterval))
	}

	return p, nil
}

// Run starts the status API and polls until SIGINT or SIGTERM.
func (p *Processor) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if p.api != nil {
		if err := p.api.Start(); err != nil {
			if cerr := p.Close(); cerr != nil {
				logger.Error("close after failed start", "error", cerr)
			}

			return fmt.Errorf("start api:\n%w", err)
		}
	}

	err := p.loop.Run(ctx)

	logger.Info("shutting down")

	if cerr := p.Close(); err == nil {
		err = cerr
	}

	return err
}

// Close shuts down all components gracefully.
func (p *Processor) Close() error {
	if p.api != nil {
		p.api.Stop()
	}

	if p.journal != nil {
		return p.journal.Close()
	}

	return nil
}
