// Package notify delivers alert messages and trigger clips to the registered
// recipients of a chat transport, and optionally to broadcast channels.
//
// A [Notifier] resolves its recipients from a [RecipientStore] plus an
// optional static chat id. Alerts are sent text first, then clip; a failed
// clip send is retried once with a distinct caption before giving up.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// ErrNoRecipients is returned when an alert or fan-out send finds nobody to
// deliver to.
var ErrNoRecipients = errors.New("No Telegram recipients configured")

// ErrTransportDisabled is returned by transports standing in for an
// unconfigured chat service.
var ErrTransportDisabled = errors.New("notify: chat transport disabled")

// Captions used for the trigger clip.
const (
	ClipCaption      = "Triggering audio clip"
	ClipRetryCaption = "Triggering audio clip (retry)"
)

// Transport delivers messages to individual chats.
type Transport interface {
	SendText(ctx context.Context, chatID, text string) error
	SendClip(ctx context.Context, chatID, path, caption string) error
}

// Broadcaster posts to a fixed set of destinations that are not tied to the
// recipient store, such as a Discord alert channel.
type Broadcaster interface {
	Name() string
	BroadcastText(ctx context.Context, text string) error
	BroadcastClip(ctx context.Context, path, caption string) error
}

// AlertReceipt reports what SendAlert delivered.
type AlertReceipt struct {
	TextSent bool `json:"text_sent"`
	ClipSent bool `json:"clip_sent"`
	Retried  bool `json:"retried,omitempty"`
}

// Notifier fans alerts out to every recipient. Safe for concurrent use.
type Notifier struct {
	transport    Transport
	store        *RecipientStore
	staticChatID string
	broadcasters []Broadcaster
	now          func() time.Time
}

// Option is a functional option for [New].
type Option func(*Notifier)

// WithStaticChatID adds a chat that always receives alerts.
func WithStaticChatID(id string) Option {
	return func(n *Notifier) { n.staticChatID = strings.TrimSpace(id) }
}

// WithBroadcaster adds a broadcast destination. Broadcasters receive every
// alert regardless of the chat transport's outcome.
func WithBroadcaster(b Broadcaster) Option {
	return func(n *Notifier) { n.broadcasters = append(n.broadcasters, b) }
}

// WithClock replaces time.Now for alert timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New creates a Notifier delivering through t to the chats in store.
func New(t Transport, store *RecipientStore, opts ...Option) *Notifier {
	n := &Notifier{transport: t, store: store, now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

// BuildMessage formats the alert text. The context label, when present, is
// appended in square brackets.
func BuildMessage(confidence, catScore float64, at time.Time, label string) string {
	msg := fmt.Sprintf("[Baby Monitor] Cry detected at %s (confidence=%.2f, cat_score=%.2f)",
		at.Format(time.DateTime), confidence, catScore)
	if label != "" {
		msg += " [" + label + "]"
	}
	return msg
}

// Recipients returns the deduplicated, sorted chat ids that receive alerts.
func (n *Notifier) Recipients() ([]string, error) {
	ids, err := n.store.List()
	if err != nil {
		return nil, err
	}
	if n.staticChatID != "" {
		ids = append(ids, n.staticChatID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// SendText delivers text to a single chat.
func (n *Notifier) SendText(ctx context.Context, chatID, text string) error {
	return n.transport.SendText(ctx, chatID, text)
}

// SendClip delivers the audio file at path to a single chat.
func (n *Notifier) SendClip(ctx context.Context, chatID, path, caption string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("notify: clip not found: %w", err)
	}
	return n.transport.SendClip(ctx, chatID, path, caption)
}

// Register adds chatID to the recipient store. It returns false without
// touching the store when new users are not accepted.
func (n *Notifier) Register(_ context.Context, chatID string, acceptNew bool) bool {
	if !acceptNew {
		return false
	}
	if err := n.store.Add(chatID); err != nil {
		slog.Warn("notify: register recipient failed", "chat_id", chatID, "err", err)
		return false
	}
	return true
}

// BroadcastText sends text to every recipient. The first failure aborts the
// fan-out.
func (n *Notifier) BroadcastText(ctx context.Context, text string) error {
	ids, err := n.Recipients()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNoRecipients
	}
	for _, id := range ids {
		if err := n.transport.SendText(ctx, id, text); err != nil {
			return fmt.Errorf("notify: send text to %s: %w", id, err)
		}
	}
	return nil
}

// BroadcastClip sends the clip at path to every recipient.
func (n *Notifier) BroadcastClip(ctx context.Context, path, caption string) error {
	ids, err := n.Recipients()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNoRecipients
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("notify: clip not found: %w", err)
	}
	for _, id := range ids {
		if err := n.transport.SendClip(ctx, id, path, caption); err != nil {
			return fmt.Errorf("notify: send clip to %s: %w", id, err)
		}
	}
	return nil
}

// SendAlert delivers the alert message, then the trigger clip, to the chat
// recipients and to every broadcaster. A failed clip fan-out is retried once
// with [ClipRetryCaption]. The receipt describes the chat transport.
//
// All failures are joined into the returned error. An unconfigured chat
// transport ([ErrNoRecipients], [ErrTransportDisabled]) is not reported when
// a broadcaster delivered the message.
func (n *Notifier) SendAlert(ctx context.Context, r scorer.DetectionResult, clipPath, label string) (AlertReceipt, error) {
	msg := BuildMessage(r.Baby, r.Cat, n.now(), label)
	receipt, chatErr := n.sendChats(ctx, msg, clipPath)

	var (
		errs      []error
		delivered bool
	)
	for _, b := range n.broadcasters {
		if err := b.BroadcastText(ctx, msg); err != nil {
			slog.Warn("notify: broadcast text failed", "broadcaster", b.Name(), "err", err)
			errs = append(errs, fmt.Errorf("notify: %s text: %w", b.Name(), err))
			continue
		}
		delivered = true
		if err := b.BroadcastClip(ctx, clipPath, ClipCaption); err != nil {
			slog.Warn("notify: broadcast clip failed", "broadcaster", b.Name(), "err", err)
			errs = append(errs, fmt.Errorf("notify: %s clip: %w", b.Name(), err))
		}
	}

	unconfigured := errors.Is(chatErr, ErrNoRecipients) || errors.Is(chatErr, ErrTransportDisabled)
	if chatErr != nil && !(unconfigured && delivered) {
		errs = append([]error{chatErr}, errs...)
	}
	return receipt, errors.Join(errs...)
}

func (n *Notifier) sendChats(ctx context.Context, msg, clipPath string) (AlertReceipt, error) {
	var receipt AlertReceipt
	if err := n.BroadcastText(ctx, msg); err != nil {
		return receipt, err
	}
	receipt.TextSent = true

	if err := n.BroadcastClip(ctx, clipPath, ClipCaption); err != nil {
		slog.Warn("notify: clip send failed, retrying", "err", err)
		receipt.Retried = true
		if err := n.BroadcastClip(ctx, clipPath, ClipRetryCaption); err != nil {
			return receipt, err
		}
	}
	receipt.ClipSent = true
	return receipt, nil
}
