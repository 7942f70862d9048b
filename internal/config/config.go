package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Persistence modes.
const (
	PersistBatch       = "batch"
	PersistIncremental = "incremental"
)

// Config holds the YAML configuration.
type Config struct {
	Version int          `yaml:"version"`
	Global  GlobalConfig `yaml:"global"`
	Chains  []Chain      `yaml:"chains"`
	Sinks   []Sink       `yaml:"sinks"`
}

type GlobalConfig struct {
	LogPath          string   `yaml:"log_path"`
	DedupeDB         string   `yaml:"dedupe_db"`
	ABIPath          string   `yaml:"abi_path"`
	ChunkThreshold   uint64   `yaml:"chunk_threshold"`
	ChunkMode        string   `yaml:"chunk_mode"`
	FetchConcurrency int      `yaml:"fetch_concurrency"`
	Persist          string   `yaml:"persist"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	MaxQueriesPerSec float64  `yaml:"max_queries_per_second"`
	QueryBurst       int      `yaml:"query_burst"`
}

type Chain struct {
	ID       string `yaml:"id"`
	RPCURL   string `yaml:"rpc_url"`
	ChainID  uint64 `yaml:"chain_id"`
	POA      bool   `yaml:"poa"`
	Contract string `yaml:"contract"`
}

type Sink struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Template   string `yaml:"template"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
}

// Duration accepts Go duration strings such as "15s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in two-chain configuration.
func Default() *Config {
	cfg := &Config{
		Version: 1,
		Chains: []Chain{
			{ID: "avax", RPCURL: "https://api.avax-test.network/ext/bc/C/rpc", ChainID: 43113},
			{ID: "bsc", RPCURL: "https://data-seed-prebsc-1-s1.binance.org:8545/", ChainID: 97, POA: true},
		},
	}
	cfg.applyDefaults()
	return cfg
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.LogPath == "" {
		g.LogPath = "deposit_logs.csv"
	}
	if g.ChunkThreshold == 0 {
		g.ChunkThreshold = 30
	}
	if g.ChunkMode == "" {
		g.ChunkMode = "per_block"
	}
	if g.FetchConcurrency == 0 {
		g.FetchConcurrency = 1
	}
	if g.Persist == "" {
		g.Persist = PersistBatch
	}
	if g.ConnectTimeout == 0 {
		g.ConnectTimeout = Duration(15 * time.Second)
	}
	if g.QueryBurst == 0 {
		g.QueryBurst = 1
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Method == "" {
			c.Sinks[i].Method = "POST"
		}
	}
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Chain returns the chain with the given id.
func (c *Config) Chain(id string) (Chain, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chain{}, false
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Chains) == 0 {
		return errors.New("at least one chain is required")
	}
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global: %w", err)
	}

	chainIDs := map[string]struct{}{}
	for _, ch := range c.Chains {
		if _, exists := chainIDs[ch.ID]; exists {
			return fmt.Errorf("duplicate chain id: %s", ch.ID)
		}
		chainIDs[ch.ID] = struct{}{}
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("chain %s: %w", ch.ID, err)
		}
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return nil
}

func (g *GlobalConfig) Validate() error {
	switch g.ChunkMode {
	case "per_block", "window":
	default:
		return fmt.Errorf("unsupported chunk_mode: %s", g.ChunkMode)
	}
	switch g.Persist {
	case PersistBatch, PersistIncremental:
	default:
		return fmt.Errorf("unsupported persist mode: %s", g.Persist)
	}
	if g.MaxQueriesPerSec < 0 || g.QueryBurst < 0 {
		return errors.New("max_queries_per_second and query_burst must be >= 0")
	}
	if g.FetchConcurrency < 1 {
		return errors.New("fetch_concurrency must be >= 1")
	}
	if g.Persist == PersistIncremental && g.FetchConcurrency > 1 {
		return errors.New("persist: incremental requires fetch_concurrency 1")
	}
	return nil
}

func (ch *Chain) Validate() error {
	if ch.ID == "" {
		return errors.New("id is required")
	}
	if ch.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
