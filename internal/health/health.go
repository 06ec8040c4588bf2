// Package health provides the gateway's liveness and readiness endpoints.
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; 200 only when every registered [Checker] passes.
//     The response also reports how many capabilities are registered, which
//     is the quickest way to see that skill and MCP registration completed.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/voxgate/voxgate/pkg/history"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	// Name keys the check result in the JSON response ("inference",
	// "history", "mcp:<server>").
	Name string

	// Check probes the dependency.
	Check func(ctx context.Context) error
}

// HistoryChecker probes the transcript store with a cheap read.
func HistoryChecker(store history.Store) Checker {
	return Checker{
		Name: "history",
		Check: func(ctx context.Context) error {
			_, err := store.Recent(ctx, "healthcheck", 1)
			return err
		},
	}
}

type result struct {
	Status       string            `json:"status"`
	Capabilities int               `json:"capabilities,omitempty"`
	Checks       map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction; safe for concurrent use.
type Handler struct {
	checkers     []Checker
	capabilities func() int
}

// Option is a functional option for configuring a Handler.
type Option func(*Handler)

// WithCapabilityCount reports the registry size in readiness responses.
func WithCapabilityCount(fn func() int) Option {
	return func(h *Handler) { h.capabilities = fn }
}

// New creates a Handler evaluating the given checkers in order on each
// /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	h := &Handler{checkers: c}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every checker passes. Each check gets its own
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	if h.capabilities != nil {
		res.Capabilities = h.capabilities()
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
