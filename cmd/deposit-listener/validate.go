package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		log := newLogger(cmd)

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		a, err := newApp(cfg, log, true, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		failures := 0
		for _, id := range a.dialer.Chains() {
			cli, err := a.dialer.Connect(cmd.Context(), id)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- chain %s: ERROR %v\n", id, err)
				continue
			}
			h, err := cli.Header(cmd.Context(), nil)
			cli.Close()
			if err != nil {
				failures++
				fmt.Fprintf(out, "- chain %s: header ERROR %v\n", id, err)
				continue
			}
			fmt.Fprintf(out, "- chain %s: head %d hash %s OK\n", id, h.Number, h.Hash.Hex())
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d chain(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
