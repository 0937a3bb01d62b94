package notify_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/cryguard/internal/notify"
	"github.com/MrWong99/cryguard/internal/notify/mock"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

var fixedTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)

func newNotifier(t *testing.T, tr *mock.Transport, opts ...notify.Option) (*notify.Notifier, string) {
	t.Helper()
	dir := t.TempDir()
	store := notify.NewRecipientStore(filepath.Join(dir, "recipients.json"))
	opts = append([]notify.Option{notify.WithClock(func() time.Time { return fixedTime })}, opts...)
	clip := filepath.Join(dir, "trigger.wav")
	if err := os.WriteFile(clip, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return notify.New(tr, store, opts...), clip
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	got := notify.BuildMessage(0.876, 0.1234, fixedTime, "")
	want := "[Baby Monitor] Cry detected at 2026-03-04 05:06:07 (confidence=0.88, cat_score=0.12)"
	if got != want {
		t.Errorf("BuildMessage = %q, want %q", got, want)
	}
	got = notify.BuildMessage(0.5, 0, fixedTime, "verifier=off")
	want = "[Baby Monitor] Cry detected at 2026-03-04 05:06:07 (confidence=0.50, cat_score=0.00) [verifier=off]"
	if got != want {
		t.Errorf("BuildMessage with context = %q", got)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	n, _ := newNotifier(t, &mock.Transport{})
	ctx := context.Background()

	if n.Register(ctx, "42", false) {
		t.Error("Register must fail when new users are not accepted")
	}
	if !n.Register(ctx, "42", true) || !n.Register(ctx, "17", true) || !n.Register(ctx, "42", true) {
		t.Fatal("Register returned false with new users accepted")
	}
	ids, err := n.Recipients()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []string{"17", "42"}) {
		t.Errorf("Recipients = %v", ids)
	}
}

func TestRecipients_IncludeStaticChat(t *testing.T) {
	t.Parallel()
	n, _ := newNotifier(t, &mock.Transport{}, notify.WithStaticChatID(" 99 "))
	n.Register(context.Background(), "99", true)
	n.Register(context.Background(), "1", true)

	ids, err := n.Recipients()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []string{"1", "99"}) {
		t.Errorf("Recipients = %v", ids)
	}
}

func TestSendAlert_NoRecipients(t *testing.T) {
	t.Parallel()
	tr := &mock.Transport{}
	n, clip := newNotifier(t, tr)

	_, err := n.SendAlert(context.Background(), scorer.DetectionResult{Primary: 0.9}, clip, "")
	if !errors.Is(err, notify.ErrNoRecipients) {
		t.Fatalf("err = %v, want ErrNoRecipients", err)
	}
	if err.Error() != "No Telegram recipients configured" {
		t.Errorf("message = %q", err.Error())
	}
	if len(tr.TextCalls()) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestSendAlert_TextThenClip(t *testing.T) {
	t.Parallel()
	tr := &mock.Transport{}
	bc := &mock.Broadcaster{Label: "discord"}
	n, clip := newNotifier(t, tr, notify.WithStaticChatID("5"), notify.WithBroadcaster(bc))

	receipt, err := n.SendAlert(context.Background(), scorer.DetectionResult{Primary: 0.91, Baby: 0.8, Cat: 0.05}, clip, "yamnet")
	if err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if receipt != (notify.AlertReceipt{TextSent: true, ClipSent: true}) {
		t.Errorf("receipt = %+v", receipt)
	}
	texts := tr.TextCalls()
	if len(texts) != 1 || texts[0].ChatID != "5" {
		t.Fatalf("texts = %+v", texts)
	}
	if texts[0].Text != "[Baby Monitor] Cry detected at 2026-03-04 05:06:07 (confidence=0.80, cat_score=0.05) [yamnet]" {
		t.Errorf("text = %q", texts[0].Text)
	}
	clips := tr.ClipCalls()
	if len(clips) != 1 || clips[0].Caption != notify.ClipCaption || clips[0].Path != clip {
		t.Errorf("clips = %+v", clips)
	}
	if len(bc.Texts) != 1 || len(bc.Clips) != 1 {
		t.Errorf("broadcaster got %d texts, %d clips", len(bc.Texts), len(bc.Clips))
	}
}

func TestSendAlert_RetriesClipOnce(t *testing.T) {
	t.Parallel()
	tr := &mock.Transport{ClipErrs: []error{errors.New("timeout")}}
	n, clip := newNotifier(t, tr, notify.WithStaticChatID("5"))

	receipt, err := n.SendAlert(context.Background(), scorer.DetectionResult{Primary: 0.7}, clip, "")
	if err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if !receipt.Retried || !receipt.ClipSent {
		t.Errorf("receipt = %+v", receipt)
	}
	clips := tr.ClipCalls()
	if len(clips) != 2 || clips[1].Caption != notify.ClipRetryCaption {
		t.Errorf("clips = %+v", clips)
	}
}

func TestSendAlert_ClipFailsTwice(t *testing.T) {
	t.Parallel()
	tr := &mock.Transport{ClipErr: errors.New("413 too large")}
	bc := &mock.Broadcaster{}
	n, clip := newNotifier(t, tr, notify.WithStaticChatID("5"), notify.WithBroadcaster(bc))

	receipt, err := n.SendAlert(context.Background(), scorer.DetectionResult{}, clip, "")
	if err == nil {
		t.Fatal("expected error after retry")
	}
	if !receipt.TextSent || receipt.ClipSent || !receipt.Retried {
		t.Errorf("receipt = %+v", receipt)
	}
	if len(tr.ClipCalls()) != 2 {
		t.Errorf("clip attempts = %d, want 2", len(tr.ClipCalls()))
	}
	if len(bc.Texts) != 1 || len(bc.Clips) != 1 {
		t.Errorf("broadcaster got %d texts, %d clips; want 1, 1", len(bc.Texts), len(bc.Clips))
	}
}

func TestSendAlert_MissingClip(t *testing.T) {
	t.Parallel()
	tr := &mock.Transport{}
	n, _ := newNotifier(t, tr, notify.WithStaticChatID("5"))

	_, err := n.SendAlert(context.Background(), scorer.DetectionResult{}, "/nonexistent/clip.wav", "")
	if err == nil {
		t.Fatal("expected error for missing clip")
	}
	if len(tr.ClipCalls()) != 0 {
		t.Error("transport must not be called for a missing clip")
	}
}

func TestSendAlert_BroadcasterFailureReported(t *testing.T) {
	t.Parallel()
	tr := &mock.Transport{}
	bc := &mock.Broadcaster{Label: "discord", TextErr: errors.New("discord down")}
	n, clip := newNotifier(t, tr, notify.WithStaticChatID("5"), notify.WithBroadcaster(bc))

	receipt, err := n.SendAlert(context.Background(), scorer.DetectionResult{}, clip, "")
	if err == nil || !strings.Contains(err.Error(), "discord down") {
		t.Fatalf("err = %v, want the broadcaster failure", err)
	}
	if !receipt.TextSent || !receipt.ClipSent {
		t.Errorf("receipt = %+v, chat delivery should still succeed", receipt)
	}
	if len(bc.Clips) != 0 {
		t.Error("clip should be skipped after a failed broadcast text")
	}
}

func TestSendAlert_BroadcastsWhenChatTransportFails(t *testing.T) {
	t.Parallel()
	chatErr := errors.New("telegram 502")
	tr := &mock.Transport{TextErr: chatErr}
	bc := &mock.Broadcaster{Label: "discord"}
	n, clip := newNotifier(t, tr, notify.WithStaticChatID("5"), notify.WithBroadcaster(bc))

	receipt, err := n.SendAlert(context.Background(), scorer.DetectionResult{Baby: 0.8}, clip, "")
	if !errors.Is(err, chatErr) {
		t.Fatalf("err = %v, want the chat failure", err)
	}
	if receipt.TextSent {
		t.Errorf("receipt = %+v", receipt)
	}
	if len(bc.Texts) != 1 || len(bc.Clips) != 1 {
		t.Fatalf("broadcaster got %d texts, %d clips; want 1, 1", len(bc.Texts), len(bc.Clips))
	}
	if bc.Clips[0].Path != clip || bc.Clips[0].Caption != notify.ClipCaption {
		t.Errorf("clip = %+v", bc.Clips[0])
	}
}

func TestSendAlert_BroadcasterOnly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tr   *mock.Transport
		opts []notify.Option
	}{
		{name: "no recipients", tr: &mock.Transport{}},
		{
			name: "transport disabled",
			tr:   &mock.Transport{TextErr: fmt.Errorf("no token: %w", notify.ErrTransportDisabled)},
			opts: []notify.Option{notify.WithStaticChatID("5")},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bc := &mock.Broadcaster{Label: "discord"}
			n, clip := newNotifier(t, tc.tr, append(tc.opts, notify.WithBroadcaster(bc))...)

			if _, err := n.SendAlert(context.Background(), scorer.DetectionResult{}, clip, ""); err != nil {
				t.Fatalf("SendAlert: %v", err)
			}
			if len(bc.Texts) != 1 || len(bc.Clips) != 1 {
				t.Errorf("broadcaster got %d texts, %d clips; want 1, 1", len(bc.Texts), len(bc.Clips))
			}
		})
	}
}
