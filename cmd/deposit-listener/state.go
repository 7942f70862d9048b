package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/devblac/deposit-listener/internal/storage"
	"github.com/spf13/cobra"
)

var stateLimit int

func init() {
	stateCmd.Flags().IntVar(&stateLimit, "limit", 10, "Number of recent scans to show")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show indexed deposit counts and recent scan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Global.DedupeDB == "" {
			return errors.New("state requires global.dedupe_db to be configured")
		}

		store, err := storage.Open(cfg.Global.DedupeDB)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		counts, err := store.CountDeposits(ctx)
		if err != nil {
			return err
		}
		scans, err := store.RecentScans(ctx, stateLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		chains := make([]string, 0, len(counts))
		for id := range counts {
			chains = append(chains, id)
		}
		sort.Strings(chains)
		fmt.Fprintln(out, "deposits indexed:")
		for _, id := range chains {
			fmt.Fprintf(out, "  %s\t%d\n", id, counts[id])
		}

		fmt.Fprintln(out, "recent scans:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  ID\tCHAIN\tBLOCKS\tRECORDS\tSTATUS\tFINISHED")
		for _, sc := range scans {
			status := sc.Status
			if sc.Error != "" {
				status += ": " + sc.Error
			}
			fmt.Fprintf(tw, "  %s\t%s\t%d-%d\t%d\t%s\t%s\n",
				sc.ID, sc.Chain, sc.FromBlock, sc.ToBlock, sc.Records, status, sc.FinishedAt.UTC().Format(time.DateTime))
		}
		return tw.Flush()
	},
}
