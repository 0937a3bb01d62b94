package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cryguard/pkg/provider/llm"
)

func TestNew_Defaults(t *testing.T) {
	p, err := New("", "llama3.2")
	if err != nil {
		t.Fatal(err)
	}
	if p.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q", p.baseURL)
	}
	if _, err := New("http://x/", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, _ = New("http://host:11434/", "m")
	if p.baseURL != "http://host:11434" {
		t.Errorf("trailing slash kept: %q", p.baseURL)
	}
}

func TestComplete(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response":          `{"decision":"block","reason":"cat"}`,
			"prompt_eval_count": 30,
			"eval_count":        9,
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL, "llama3.2", WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	req := llm.UserPrompt("metrics")
	req.JSON = true
	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"decision":"block","reason":"cat"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 39 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if got.Model != "llama3.2" || got.Prompt != "metrics" || got.Stream || got.Format != "json" {
		t.Errorf("request = %+v", got)
	}
	if got.Options != nil {
		t.Errorf("options should be omitted, got %v", got.Options)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "missing")
	_, err := p.Complete(context.Background(), llm.UserPrompt("x"))
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v", err)
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "m")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Complete(ctx, llm.UserPrompt("x")); err == nil {
		t.Error("expected error on cancelled context")
	}
}
