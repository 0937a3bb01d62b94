// Package discord posts alerts to fixed Discord text channels through a bot
// session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/cryguard/internal/notify"
)

var _ notify.Broadcaster = (*Broadcaster)(nil)

// Config holds Discord broadcaster configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string `yaml:"token"`

	// ChannelIDs are the text channels that receive alerts.
	ChannelIDs []string `yaml:"channel_ids"`
}

// Session is the subset of *discordgo.Session used for posting.
type Session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelFileSendWithMessage(channelID, content, name string, r io.Reader, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Broadcaster fans alert text and clips out to every configured channel.
type Broadcaster struct {
	session  Session
	channels []string
	closer   func() error
}

// New opens a bot session for cfg. Call [Broadcaster.Close] when done.
func New(cfg Config) (*Broadcaster, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token must not be empty")
	}
	if len(cfg.ChannelIDs) == 0 {
		return nil, errors.New("discord: at least one channel id is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	b := NewWithSession(s, cfg.ChannelIDs)
	b.closer = s.Close
	return b, nil
}

// NewWithSession wraps an existing session. Used by tests.
func NewWithSession(s Session, channelIDs []string) *Broadcaster {
	return &Broadcaster{session: s, channels: append([]string(nil), channelIDs...)}
}

// Name implements [notify.Broadcaster].
func (b *Broadcaster) Name() string { return "discord" }

// BroadcastText posts text to every channel. All channels are attempted; the
// errors are joined.
func (b *Broadcaster) BroadcastText(ctx context.Context, text string) error {
	var errs []error
	for _, ch := range b.channels {
		if _, err := b.session.ChannelMessageSend(ch, text, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("discord: send to %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// BroadcastClip uploads the file at path with caption to every channel.
func (b *Broadcaster) BroadcastClip(ctx context.Context, path, caption string) error {
	var errs []error
	for _, ch := range b.channels {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("discord: open clip: %w", err)
		}
		_, err = b.session.ChannelFileSendWithMessage(ch, caption, filepath.Base(path), f, discordgo.WithContext(ctx))
		f.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("discord: upload to %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes the underlying session when this Broadcaster opened it.
func (b *Broadcaster) Close() error {
	if b.closer == nil {
		return nil
	}
	if err := b.closer(); err != nil {
		slog.Warn("discord: close session", "err", err)
		return err
	}
	return nil
}
