package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cryguard/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		got := convertMessage(llm.Message{Role: role, Content: "hello"})
		if got.Role != role {
			t.Errorf("expected role %s, got %q", role, got.Role)
		}
		if got.ContentString() != "hello" {
			t.Errorf("expected content hello, got %q", got.ContentString())
		}
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "llama3.2"}
	req := llm.UserPrompt("judge this")
	req.SystemPrompt = "be strict"

	params := p.buildParams(req)
	if params.Model != "llama3.2" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "be strict" {
		t.Errorf("first message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("second role = %q", params.Messages[1].Role)
	}
}

func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "m"}

	params := p.buildParams(llm.UserPrompt("x"))
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens must stay unset")
	}

	req := llm.UserPrompt("x")
	req.Temperature = 0.2
	req.MaxTokens = 64
	params = p.buildParams(req)
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 64 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty provider")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("expected error for empty model")
	}
	_, err := New("watson", "m")
	if err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("err = %v", err)
	}
}

func TestNew_Ollama(t *testing.T) {
	p, err := NewOllama("llama3.2", anyllmlib.WithBaseURL("http://127.0.0.1:11434"))
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if p.Name() != "anyllm/ollama" {
		t.Errorf("Name = %q", p.Name())
	}
}
