// Package mock provides in-memory [notify.Transport] and [notify.Broadcaster]
// implementations that record every call.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cryguard/internal/notify"
)

var (
	_ notify.Transport   = (*Transport)(nil)
	_ notify.Broadcaster = (*Broadcaster)(nil)
)

// TextCall records one SendText invocation.
type TextCall struct {
	ChatID string
	Text   string
}

// ClipCall records one SendClip invocation.
type ClipCall struct {
	ChatID  string
	Path    string
	Caption string
}

// Transport records sends. ClipErrs is consumed one entry per SendClip call;
// once exhausted, ClipErr is returned.
type Transport struct {
	mu sync.Mutex

	TextErr  error
	ClipErr  error
	ClipErrs []error

	Texts []TextCall
	Clips []ClipCall
}

// SendText implements [notify.Transport].
func (t *Transport) SendText(_ context.Context, chatID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Texts = append(t.Texts, TextCall{ChatID: chatID, Text: text})
	return t.TextErr
}

// SendClip implements [notify.Transport].
func (t *Transport) SendClip(_ context.Context, chatID, path, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Clips = append(t.Clips, ClipCall{ChatID: chatID, Path: path, Caption: caption})
	if len(t.ClipErrs) > 0 {
		err := t.ClipErrs[0]
		t.ClipErrs = t.ClipErrs[1:]
		return err
	}
	return t.ClipErr
}

// TextCalls returns a copy of the recorded text sends.
func (t *Transport) TextCalls() []TextCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TextCall(nil), t.Texts...)
}

// ClipCalls returns a copy of the recorded clip sends.
func (t *Transport) ClipCalls() []ClipCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ClipCall(nil), t.Clips...)
}

// Broadcaster records broadcasts.
type Broadcaster struct {
	mu sync.Mutex

	Label   string
	TextErr error
	ClipErr error

	Texts []string
	Clips []ClipCall
}

// Name implements [notify.Broadcaster].
func (b *Broadcaster) Name() string {
	if b.Label == "" {
		return "mock"
	}
	return b.Label
}

// BroadcastText implements [notify.Broadcaster].
func (b *Broadcaster) BroadcastText(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Texts = append(b.Texts, text)
	return b.TextErr
}

// BroadcastClip implements [notify.Broadcaster].
func (b *Broadcaster) BroadcastClip(_ context.Context, path, caption string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Clips = append(b.Clips, ClipCall{Path: path, Caption: caption})
	return b.ClipErr
}
