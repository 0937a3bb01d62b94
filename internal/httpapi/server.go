// Package httpapi serves the monitor's thin HTTP surface: health checks,
// Prometheus metrics, one-shot clip classification, Telegram registration
// and a websocket stream of the live calibration status.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/cryguard/internal/calibration"
	"github.com/MrWong99/cryguard/internal/decision"
	"github.com/MrWong99/cryguard/internal/health"
	"github.com/MrWong99/cryguard/internal/observe"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// DefaultMaxUploadBytes caps /classify request bodies.
const DefaultMaxUploadBytes = 32 << 20

// Registrar adds Telegram chats as alert recipients and replies to them.
// [notify.Notifier] satisfies it.
type Registrar interface {
	Register(ctx context.Context, chatID string, acceptNew bool) bool
	SendText(ctx context.Context, chatID, text string) error
}

// ControlReader exposes the persisted calibration control. [calibration.Store]
// satisfies it.
type ControlReader interface {
	Load() calibration.Control
}

// Config holds the request-independent settings of a [Server].
type Config struct {
	// SampleRate is the rate uploads are resampled to before scoring.
	SampleRate int

	// Thresholds decide the /classify verdict.
	Thresholds decision.Thresholds

	// AcceptNewUsers is passed to the registrar on every registration.
	AcceptNewUsers bool

	// ManualRegistration exposes POST /telegram/start.
	ManualRegistration bool

	// MaxUploadBytes caps /classify bodies. Zero means DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// StreamInterval fixes the websocket push period. Zero follows the
	// calibration control's interval.
	StreamInterval time.Duration
}

// Server builds the HTTP handler tree. Create with [New].
type Server struct {
	cfg       Config
	primary   scorer.Provider
	verifier  scorer.Provider
	registrar Registrar
	control   ControlReader
	health    *health.Handler
	metrics   *observe.Metrics
	promh     http.Handler

	mu      sync.Mutex
	latest  calibration.Status
	version uint64
}

// Option is a functional option for [New].
type Option func(*Server)

// WithVerifier adds the second-stage scorer to /classify.
func WithVerifier(p scorer.Provider) Option {
	return func(s *Server) { s.verifier = p }
}

// WithHealth replaces the default health handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the default promhttp handler on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.promh = h }
}

// WithControl sets the calibration control read by the status stream.
func WithControl(c ControlReader) Option {
	return func(s *Server) { s.control = c }
}

// New creates a Server. primary is required; registrar may be nil, in which
// case the Telegram endpoints answer 503.
func New(cfg Config, primary scorer.Provider, registrar Registrar, opts ...Option) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		cfg:       cfg,
		primary:   primary,
		registrar: registrar,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.promh == nil {
		s.promh = promhttp.Handler()
	}
	return s
}

// Handler returns the routed handler wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.promh)
	mux.HandleFunc("POST /classify", s.handleClassify)
	mux.HandleFunc("POST /telegram/start", s.handleTelegramStart)
	mux.HandleFunc("POST /telegram/webhook", s.handleTelegramWebhook)
	mux.HandleFunc("GET /calibration/stream", s.handleStream)
	return observe.Middleware(s.metrics)(mux)
}

// Publish records st as the latest status snapshot for stream clients.
// It is safe to pass as the monitor's status sink.
func (s *Server) Publish(st calibration.Status) {
	s.mu.Lock()
	s.latest = st
	s.version++
	s.mu.Unlock()
}

func (s *Server) snapshot() (calibration.Status, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.version
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: failed to encode response", "err", err)
	}
}
