package logging

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options configures NewWithOptions.
type Options struct {
	Level string
	// Pretty selects a colorized console handler.
	Pretty bool
	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// New returns a minimal structured logger with secret redaction.
func New() *slog.Logger {
	return NewWithOptions(Options{Level: "info"})
}

// NewWithLevel returns a text logger at the named level; unknown names mean info.
func NewWithLevel(level string) *slog.Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions builds a logger from opts.
func NewWithOptions(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	lvl := parseLevel(opts.Level)
	if opts.Pretty {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:       lvl,
			TimeFormat:  time.DateTime,
			ReplaceAttr: redact,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: redact,
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(groups []string, a slog.Attr) slog.Attr {
	if isSecretKey(a.Key) {
		a.Value = slog.StringValue("[redacted]")
		return a
	}
	if isURLKey(a.Key) {
		a.Value = slog.StringValue(stripURL(a.Value.String()))
	}
	return a
}

// "token" alone names a deposit's token address and stays visible.
func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	return strings.HasSuffix(k, "_token") || strings.HasPrefix(k, "auth") ||
		strings.Contains(k, "secret") || strings.Contains(k, "key") || strings.Contains(k, "pass")
}

func isURLKey(k string) bool {
	k = strings.ToLower(k)
	return k == "url" || strings.HasSuffix(k, "_url")
}

// stripURL drops userinfo, query and any path segment long enough to be an API key.
func stripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	segs := strings.Split(u.Path, "/")
	for i, s := range segs {
		if len(s) >= 24 {
			segs[i] = "REDACTED"
		}
	}
	u.Path = strings.Join(segs, "/")
	u.RawPath = ""
	return u.String()
}
