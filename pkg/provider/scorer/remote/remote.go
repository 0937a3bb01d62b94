// Package remote provides a scorer backed by an HTTP model server.
//
// Each window is encoded as a 16-bit mono WAV and POSTed to the server's
// classify endpoint. The server replies with the three scores as JSON:
//
//	{"primary_score": 0.91, "baby_score": 0.87, "cat_score": 0.04}
//
// A cryguard instance exposes the same contract on its own /classify route,
// so one deployment can act as the verifier for another.
//
// Example usage:
//
//	p, err := remote.New("http://classifier:8000", remote.WithTimeout(5*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := p.Score(ctx, window.Samples, window.SampleRate)
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// DefaultPath is the classify endpoint path appended to the base URL.
const DefaultPath = "/classify"

var _ scorer.Provider = (*Provider)(nil)

// Provider implements scorer.Provider against a remote model server.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	path       string
	label      string
	httpClient *http.Client
}

type config struct {
	timeout time.Duration
	path    string
	label   string
	client  *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPath overrides [DefaultPath].
func WithPath(p string) Option {
	return func(c *config) { c.path = p }
}

// WithLabel overrides the runtime label returned by Name.
func WithLabel(l string) Option {
	return func(c *config) { c.label = l }
}

// WithHTTPClient supplies a custom HTTP client. WithTimeout still applies
// to a copy; hc itself is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.client = hc }
}

// New constructs a remote Provider. baseURL must not be empty; a trailing
// slash is stripped.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote scorer: base URL must not be empty")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{path: DefaultPath}
	for _, o := range opts {
		o(cfg)
	}
	hc := &http.Client{}
	if cfg.client != nil {
		// Copy so the timeout does not leak into the caller's client.
		c := *cfg.client
		hc = &c
	}
	if cfg.timeout > 0 {
		hc.Timeout = cfg.timeout
	}
	label := cfg.label
	if label == "" {
		label = "remote(" + baseURL + ")"
	}
	return &Provider{
		baseURL:    baseURL,
		path:       cfg.path,
		label:      label,
		httpClient: hc,
	}, nil
}

// Score implements scorer.Provider. Scores outside [0, 1] are clamped.
func (p *Provider) Score(ctx context.Context, samples []float32, sampleRate int) (scorer.DetectionResult, error) {
	if len(samples) == 0 {
		return scorer.DetectionResult{}, nil
	}
	body := audio.EncodeWAV(samples, sampleRate)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(body))
	if err != nil {
		return scorer.DetectionResult{}, fmt.Errorf("remote scorer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return scorer.DetectionResult{}, fmt.Errorf("remote scorer: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return scorer.DetectionResult{}, fmt.Errorf("remote scorer: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out scorer.DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return scorer.DetectionResult{}, fmt.Errorf("remote scorer: decode response: %w", err)
	}
	return out.Clamp(), nil
}

// Name implements scorer.Provider.
func (p *Provider) Name() string { return p.label }
