package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/devblac/deposit-listener/internal/config"
	"github.com/devblac/deposit-listener/internal/logstore"
	"github.com/devblac/deposit-listener/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, "avax", cfg.Chains[0].ID)
	assert.True(t, cfg.Chains[1].POA)
	assert.Equal(t, uint64(30), cfg.Global.ChunkThreshold)

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")
}

func TestExportFiltersByChain(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "deposit_logs.csv")
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`version: 1
global:
  log_path: `+logPath+`
chains:
  - id: avax
    rpc_url: http://127.0.0.1:1
`), 0o644))

	store, err := logstore.New(logPath)
	require.NoError(t, err)
	_, err = store.Append([]record.Record{
		{Chain: "avax", Amount: "1", TransactionHash: "0x1", Date: "2026-10-14 07:30:05"},
		{Chain: "bsc", Amount: "123456789012345678901234567890", TransactionHash: "0x2", Date: "2026-10-14 07:30:06"},
	})
	require.NoError(t, err)

	out, err := run(t, "export", "--config", cfgFile, "--chain", "bsc")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var got record.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "bsc", got.Chain)
	assert.Equal(t, "123456789012345678901234567890", got.Amount)
}

func TestLookbackStart(t *testing.T) {
	assert.Equal(t, uint64(71), lookbackStart(100, 29))
	assert.Equal(t, uint64(0), lookbackStart(10, 29))
}

func TestScanRejectsBadBlock(t *testing.T) {
	_, err := run(t, "scan", "--chain", "avax", "--from", "abc", "--contract", "0x00000000000000000000000000000000000000cc")
	assert.ErrorContains(t, err, "--from")
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "deposit-listener dev", versionString(nil))

	info := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-14T07:30:05Z"},
		},
	}
	assert.Equal(t, "deposit-listener v1.2.0 commit 0123456789ab built 2026-10-14T07:30:05Z", versionString(info))

	version = "v9.9.9"
	t.Cleanup(func() { version = "" })
	assert.Equal(t, "deposit-listener v9.9.9 commit 0123456789ab built 2026-10-14T07:30:05Z", versionString(info))
}
