package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = ""
	commit  = ""
	date    = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, _ := debug.ReadBuildInfo()
		fmt.Fprintln(cmd.OutOrStdout(), versionString(info))
		return nil
	},
}

// versionString prefers linker-injected values and falls back to the module build info.
func versionString(info *debug.BuildInfo) string {
	v, rev, built := version, commit, date
	if info != nil {
		if v == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if rev == "" {
					rev = s.Value
					if len(rev) > 12 {
						rev = rev[:12]
					}
				}
			case "vcs.time":
				if built == "" {
					built = s.Value
				}
			}
		}
	}
	if v == "" {
		v = "dev"
	}

	var b strings.Builder
	b.WriteString("deposit-listener " + v)
	if rev != "" {
		b.WriteString(" commit " + rev)
	}
	if built != "" {
		b.WriteString(" built " + built)
	}
	return b.String()
}
