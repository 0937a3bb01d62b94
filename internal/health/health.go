// Package health serves the liveness and readiness checks.
//
// Three routes are registered:
//
//   - /health  the legacy check, always {"status":"ok"}
//   - /healthz liveness, always 200
//   - /readyz  readiness, 200 unless a required [Checker] fails
//
// Checkers run concurrently, each under its own deadline. An optional
// checker that fails is reported as "degraded" without failing readiness;
// the GPU check is the typical example.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check.
type Checker struct {
	// Name keys the result in the JSON response.
	Name string

	// Check returns nil when the dependency is usable. It must respect ctx.
	Check func(ctx context.Context) error

	// Optional checkers degrade rather than fail readiness.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health routes. It is safe for concurrent use.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
}

// New creates a Handler with the given checkers.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	for _, c := range checkers {
		h.Add(c)
	}
	return h
}

// Add registers another checker. Subsystems that start late (the event
// database, the poller) add themselves once they are up.
func (h *Handler) Add(c Checker) {
	h.mu.Lock()
	h.checkers = append(h.checkers, c)
	h.mu.Unlock()
}

// Health answers the legacy /health route.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Healthz is the liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker and reports "ok", "degraded" (only optional
// checks failed, still 200) or "fail" (503).
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	outcomes := make([]error, len(checkers))
	g, ctx := errgroup.WithContext(r.Context())
	for i, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			outcomes[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(checkers))}
	status := http.StatusOK
	for i, c := range checkers {
		err := outcomes[i]
		switch {
		case err == nil:
			res.Checks[c.Name] = "ok"
		case c.Optional:
			res.Checks[c.Name] = "degraded: " + err.Error()
			if res.Status == "ok" {
				res.Status = "degraded"
			}
		default:
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, res)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ── Checkers ────────────────────────────────────────────────────────────────

// ScorerCheck scores a short silent window with p.
func ScorerCheck(name string, p scorer.Provider, sampleRate int) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			_, err := p.Score(ctx, make([]float32, sampleRate/10), sampleRate)
			return err
		},
	}
}

// DirWritableCheck verifies that a file can be created in dir.
func DirWritableCheck(name, dir string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			f, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return err
			}
			path := f.Name()
			_ = f.Close()
			return os.Remove(path)
		},
	}
}

// FuncCheck adapts an (ok, detail) function such as the GPU check.
func FuncCheck(name string, optional bool, fn func(ctx context.Context) (bool, string)) Checker {
	return Checker{
		Name:     name,
		Optional: optional,
		Check: func(ctx context.Context) error {
			if ok, detail := fn(ctx); !ok {
				return fmt.Errorf("%s", detail)
			}
			return nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
