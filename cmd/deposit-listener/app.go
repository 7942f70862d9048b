package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/devblac/deposit-listener/internal/config"
	"github.com/devblac/deposit-listener/internal/engine"
	"github.com/devblac/deposit-listener/internal/logstore"
	"github.com/devblac/deposit-listener/internal/metrics"
	"github.com/devblac/deposit-listener/internal/sink"
	"github.com/devblac/deposit-listener/internal/source/evm"
	"github.com/devblac/deposit-listener/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// app holds the components shared by scan and watch.
type app struct {
	cfg    *config.Config
	dialer *evm.Dialer
	index  *storage.Store
	runner *engine.Runner
}

func newApp(cfg *config.Config, log *slog.Logger, dryRun bool, mtr *metrics.Metrics) (*app, error) {
	event, err := evm.LoadDepositEvent(cfg.Global.ABIPath)
	if err != nil {
		return nil, err
	}
	logs, err := logstore.New(cfg.Global.LogPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		dialer: evm.NewDialer(cfg.Chains, time.Duration(cfg.Global.ConnectTimeout), log),
	}

	opts := engine.Options{
		Plan: evm.PlanOptions{
			Threshold: cfg.Global.ChunkThreshold,
			Mode:      cfg.Global.ChunkMode,
		},
		FetchConcurrency: cfg.Global.FetchConcurrency,
		QueriesPerSecond: cfg.Global.MaxQueriesPerSec,
		QueryBurst:       cfg.Global.QueryBurst,
		Persist:          cfg.Global.Persist,
		DryRun:           dryRun,
		Metrics:          mtr,
		Logger:           log,
	}

	if cfg.Global.DedupeDB != "" {
		store, err := storage.Open(cfg.Global.DedupeDB)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.index = store
		opts.Index = store
	}

	for _, s := range cfg.Sinks {
		sender, err := sink.FromConfig(s)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		opts.Sinks = append(opts.Sinks, sender)
	}

	a.runner, err = engine.NewRunner(a.dialer, logs, event, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.index != nil {
		_ = a.index.Close()
	}
}

// contractFor picks the flag value, then the chain's configured default.
func (a *app) contractFor(chain, flag string) (common.Address, error) {
	addr := flag
	if addr == "" {
		if ch, ok := a.cfg.Chain(chain); ok {
			addr = ch.Contract
		}
	}
	if addr == "" {
		return common.Address{}, fmt.Errorf("no contract address for chain %s: pass --contract", chain)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("invalid contract address %q", addr)
	}
	return common.HexToAddress(addr), nil
}
