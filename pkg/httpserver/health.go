package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Health serves liveness and readiness probes over a set of named checks.
type Health struct {
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealth returns probes over checks. Each check gets at most timeout;
// zero means two seconds.
func NewHealth(checks map[string]Check, timeout time.Duration, log *slog.Logger) *Health {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Health{checks: checks, timeout: timeout, logger: log}
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is serving.
func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeResponse{Status: "alive"})
}

// Ready runs every check concurrently. Any failure answers 503.
func (h *Health) Ready(w http.ResponseWriter, r *http.Request) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(h.checks))
		healthy = true
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()

			status := "ok"
			if err := check(ctx); err != nil {
				h.logger.WarnContext(r.Context(), "readiness check failed",
					slog.String("check", name),
					logger.Error(err),
				)
				status = "unavailable"
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = status
			if status != "ok" {
				healthy = false
			}
		}()
	}
	wg.Wait()

	if !healthy {
		writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "not_ready", Checks: results})
		return
	}
	writeProbe(w, http.StatusOK, probeResponse{Status: "ready", Checks: results})
}

func writeProbe(w http.ResponseWriter, code int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
