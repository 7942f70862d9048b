package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devblac/deposit-listener/internal/health"
	"github.com/devblac/deposit-listener/internal/metrics"
	"github.com/devblac/deposit-listener/internal/source/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	watchChains   []string
	watchContract string
	watchInterval time.Duration
	watchLookback uint64
	watchOnce     bool
	watchDryRun   bool
	watchHealth   string
	watchMetrics  string
)

func init() {
	watchCmd.Flags().StringSliceVar(&watchChains, "chain", nil, "Chains to watch (default: all configured)")
	watchCmd.Flags().StringVar(&watchContract, "contract", "", "Contract address; overrides each chain's configured contract")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Time between scans")
	watchCmd.Flags().Uint64Var(&watchLookback, "lookback", 29, "First scan covers latest-N through latest")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run one scan per chain and exit")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "Do not write the log or notify sinks")
	watchCmd.Flags().StringVar(&watchHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	watchCmd.Flags().StringVar(&watchMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

// watch target: one chain, its contract and the next block to scan.
type target struct {
	chain    string
	contract common.Address
	head     evm.HeadReader
	next     uint64
	started  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Repeatedly scan new blocks on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var mtr *metrics.Metrics
		if watchMetrics != "" || watchHealth != "" {
			mtr = metrics.Init()
		}

		a, err := newApp(cfg, log, watchDryRun, mtr)
		if err != nil {
			return err
		}
		defer a.Close()

		chains := watchChains
		if len(chains) == 0 {
			chains = a.dialer.Chains()
		}

		var targets []*target
		heads := map[string]evm.HeadReader{}
		for _, id := range chains {
			contract, err := a.contractFor(id, watchContract)
			if err != nil {
				return err
			}
			cli, err := a.dialer.Connect(ctx, id)
			if err != nil {
				return err
			}
			defer cli.Close()
			heads[id] = cli
			targets = append(targets, &target{chain: id, contract: contract, head: cli})
		}

		if watchHealth != "" {
			checker := health.Checker{
				RPCPing:  health.NewRPCChecker(heads).Ping,
				LastScan: a.runner.LastScan,
			}
			if a.index != nil {
				checker.DBPing = a.index.Ping
			}
			extra := map[string]http.Handler{}
			if watchMetrics == "" {
				extra["/metrics"] = metrics.Handler()
			}
			srv := health.Serve(watchHealth, checker, extra, log)
			log.Info("health check enabled", "addr", watchHealth)
			defer shutdown(srv)
		}

		if watchMetrics != "" {
			srv := health.Serve(watchMetrics, health.Checker{}, map[string]http.Handler{
				"/metrics": metrics.Handler(),
			}, log)
			log.Info("metrics enabled", "addr", watchMetrics)
			defer shutdown(srv)
		}

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			for _, t := range targets {
				if err := tick(ctx, log, a, t); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Error("scan failed", "chain", t.chain, "error", err)
				}
			}
			if watchOnce {
				return nil
			}
			select {
			case <-ctx.Done():
				log.Info("watch stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

// tick scans from the block after the previous scan up to the current head.
// A failed scan is retried from the same block on the next tick.
func tick(ctx context.Context, log *slog.Logger, a *app, t *target) error {
	head, err := t.head.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("head block: %w", err)
	}
	if !t.started {
		t.next = lookbackStart(head, watchLookback)
		t.started = true
	}
	if t.next > head {
		log.Debug("no new blocks", "chain", t.chain, "head", head)
		return nil
	}

	res, err := a.runner.Scan(ctx, evm.ScanRequest{
		Chain:    t.chain,
		Start:    evm.BlockNumber(t.next),
		End:      evm.BlockNumber(head),
		Contract: t.contract,
	})
	if err != nil {
		return err
	}
	t.next = res.To + 1
	return nil
}

func lookbackStart(head, lookback uint64) uint64 {
	if lookback > head {
		return 0
	}
	return head - lookback
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(ctx, srv)
}
