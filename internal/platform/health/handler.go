// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"warden/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

const checkTimeout = 2 * time.Second

const (
	statusUp   = "up"
	statusDown = "down"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

type Handler struct {
	started     time.Time
	environment string
	logger      *slog.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New builds probes for environment. A nil logger uses slog.Default.
func New(environment string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		started:     time.Now(),
		environment: environment,
		logger:      logger,
		checks:      make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a dependency to the readiness probe.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleReadiness)
	r.Get("/healthz/live", h.HandleLiveness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness answers 200 while the process is serving, regardless of
// dependencies.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Environment   string            `json:"environment"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs the registered checks in parallel under a shared
// deadline and answers 503 if any is down. Failure details are logged, not
// returned.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	results := h.runChecks(r.Context())

	resp := ReadinessResponse{
		Status:        "ok",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Checks:        results,
	}
	status := http.StatusOK
	for _, state := range results {
		if state != statusUp {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]string, len(h.checks))
	var g errgroup.Group
	for name, check := range h.checks {
		g.Go(func() error {
			state := statusUp
			if err := check(ctx); err != nil {
				state = statusDown
				h.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			}
			mu.Lock()
			results[name] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
