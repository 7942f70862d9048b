package main

import (
	"encoding/json"

	"github.com/devblac/deposit-listener/internal/logstore"
	"github.com/spf13/cobra"
)

var exportChain string

func init() {
	exportCmd.Flags().StringVar(&exportChain, "chain", "", "Only export records for this chain")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the deposit log as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logs, err := logstore.New(cfg.Global.LogPath)
		if err != nil {
			return err
		}
		recs, err := logs.ReadAll()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, rec := range recs {
			if exportChain != "" && rec.Chain != exportChain {
				continue
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}
