package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer/remote"
)

func mockClassifyServer(t *testing.T, resp map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("unexpected path: got %q, want /classify", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: got %q, want POST", r.Method)
		}
		samples, rate, err := audio.ReadWAV(r.Body)
		if err != nil {
			t.Errorf("request body is not a wav: %v", err)
		}
		if rate != 16000 || len(samples) != 4 {
			t.Errorf("wav = %d samples @ %d Hz, want 4 @ 16000", len(samples), rate)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestScore(t *testing.T) {
	srv := mockClassifyServer(t, map[string]float64{"primary_score": 0.9, "baby_score": 0.8, "cat_score": 1.7})
	defer srv.Close()

	p, err := remote.New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Score(context.Background(), []float32{0, 0.1, 0.2, 0.3}, 16000)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Primary != 0.9 || got.Baby != 0.8 {
		t.Errorf("Score = %+v, want primary 0.9 baby 0.8", got)
	}
	if got.Cat != 1 {
		t.Errorf("Cat = %v, want clamped to 1", got.Cat)
	}
	if !strings.HasPrefix(p.Name(), "remote(") {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestScore_EmptyWindowSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	p, _ := remote.New(srv.URL)
	got, err := p.Score(context.Background(), nil, 16000)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if called {
		t.Error("empty window should not hit the server")
	}
	if got.Primary != 0 || got.Baby != 0 || got.Cat != 0 {
		t.Errorf("Score = %+v, want zeros", got)
	}
}

func TestScore_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := remote.New(srv.URL, remote.WithLabel("verifier"))
	_, err := p.Score(context.Background(), []float32{0.1}, 16000)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want status 503", err)
	}
	if p.Name() != "verifier" {
		t.Errorf("Name = %q, want verifier", p.Name())
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := remote.New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}

func TestNew_TimeoutLeavesCallerClientUntouched(t *testing.T) {
	srv := mockClassifyServer(t, map[string]float64{"primary_score": 0.5})
	defer srv.Close()

	hc := &http.Client{Timeout: time.Minute}
	p, err := remote.New(srv.URL, remote.WithHTTPClient(hc), remote.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if hc.Timeout != time.Minute {
		t.Errorf("caller client timeout = %v, want 1m", hc.Timeout)
	}
	if _, err := p.Score(context.Background(), []float32{0, 0.1, 0.2, 0.3}, 16000); err != nil {
		t.Fatalf("Score: %v", err)
	}
}
