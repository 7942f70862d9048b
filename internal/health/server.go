package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Checker groups the probes reported by /healthz. Nil probes are skipped.
type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	// LastScan reports when the most recent scan finished and its error, if any.
	LastScan func() (time.Time, error)
}

// Handler returns the /healthz handler.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		probe := func(name string, fn func(ctx context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				status[name] = "fail"
				code = http.StatusServiceUnavailable
				return
			}
			status[name] = "ok"
		}
		probe("db", checker.DBPing)
		probe("rpc", checker.RPCPing)

		if checker.LastScan != nil {
			at, err := checker.LastScan()
			switch {
			case at.IsZero():
				status["scan"] = "pending"
			case err != nil:
				status["scan"] = "fail"
				code = http.StatusServiceUnavailable
			default:
				status["scan"] = "ok"
			}
			if !at.IsZero() {
				status["last_scan"] = at.UTC().Format(time.RFC3339)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}

// Serve starts /healthz on addr, plus any extra handlers keyed by path.
// Listen failures such as a port already in use are logged on log.
func Serve(addr string, checker Checker, extra map[string]http.Handler, log *slog.Logger) *http.Server {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(checker))
	for path, h := range extra {
		mux.Handle(path, h)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "addr", addr, "error", err)
		}
	}()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
