package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/cryguard/internal/notify"
	"github.com/MrWong99/cryguard/internal/notify/telegram"
	"github.com/MrWong99/cryguard/internal/poller"
)

// telegramFeed adapts the Bot API long poll to [poller.Feed].
type telegramFeed struct {
	client *telegram.Client
}

var _ poller.Feed = telegramFeed{}

func (f telegramFeed) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]poller.Update, error) {
	raw, err := f.client.GetUpdates(ctx, offset, timeout)
	if err != nil {
		return nil, err
	}
	out := make([]poller.Update, len(raw))
	for i, u := range raw {
		out[i] = poller.Update{ID: u.ID, ChatID: u.ChatID, Text: u.Text}
	}
	return out, nil
}

// errTelegramDisabled is returned by sends when no bot token is configured.
var errTelegramDisabled = fmt.Errorf("app: telegram has no bot token: %w", notify.ErrTransportDisabled)

// disabledTransport stands in for Telegram in Discord-only deployments.
type disabledTransport struct{}

var _ notify.Transport = disabledTransport{}

func (disabledTransport) SendText(context.Context, string, string) error { return errTelegramDisabled }

func (disabledTransport) SendClip(context.Context, string, string, string) error {
	return errTelegramDisabled
}
