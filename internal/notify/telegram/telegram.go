// Package telegram adapts the go-telegram-bot-api client to the monitor's
// needs: long-polling updates, plain text messages and audio uploads.
//
// Example usage:
//
//	c, err := telegram.New(os.Getenv("TELEGRAM_BOT_TOKEN"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = c.SendText(ctx, "123456", "hello")
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrWong99/cryguard/internal/notify"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// pollGrace is added to the long-poll timeout for the HTTP round trip.
const pollGrace = 10 * time.Second

var _ notify.Transport = (*Client)(nil)

// Update is one decoded message update.
type Update struct {
	ID     int64
	ChatID string
	Text   string
}

// APIError is returned for non-2xx responses and for ok=false payloads.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram: %s: status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram: %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

// ClipConverter prepares an audio file for upload and returns the path to
// send. See [notify.FFmpegMP3].
type ClipConverter func(ctx context.Context, path string) (string, error)

// Client talks to the Bot API. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	convert    ClipConverter
	bot        *tgbotapi.BotAPI
}

// Option is a functional option for [New].
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout for send requests. Default 15s. Long polls
// use their own timeout plus a grace period.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithClipConverter sets the converter applied before every audio upload.
func WithClipConverter(fn ClipConverter) Option {
	return func(c *Client) { c.convert = fn }
}

// New creates a Client for the bot identified by token. No request is made
// until the first call.
func New(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: bot token must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{},
		timeout:    15 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}

	// tgbotapi.NewBotAPI calls getMe on construction; build the value
	// directly so startup does not depend on the network.
	c.bot = &tgbotapi.BotAPI{
		Token:  token,
		Buffer: 100,
		Client: c.httpClient,
	}
	c.bot.SetAPIEndpoint(c.baseURL + "/bot%s/%s")
	return c, nil
}

// callDoer binds one API call to ctx and remembers the HTTP status, which
// the library does not surface.
type callDoer struct {
	ctx    context.Context
	hc     *http.Client
	status int
}

func (d *callDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.hc.Do(req.WithContext(d.ctx))
	if resp != nil {
		d.status = resp.StatusCode
	}
	return resp, err
}

// call returns a per-request copy of the bot bound to ctx.
func (c *Client) call(ctx context.Context) (*tgbotapi.BotAPI, *callDoer) {
	d := &callDoer{ctx: ctx, hc: c.httpClient}
	b := *c.bot
	b.Client = d
	return &b, d
}

// wrap maps library errors onto APIError and prefixes the rest.
func wrap(method string, d *callDoer, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		status := d.status
		if status == 0 {
			status = tgErr.Code
		}
		return &APIError{Method: method, StatusCode: status, Description: tgErr.Message}
	}
	if d.status != 0 && (d.status < 200 || d.status > 299) {
		return &APIError{Method: method, StatusCode: d.status}
	}
	return fmt.Errorf("telegram: %s: %w", method, err)
}

// chat fills the chat_id of a request. Numeric ids go as ChatID,
// everything else (for example "@channel") as a channel username.
func chat(chatID string) tgbotapi.BaseChat {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}
	}
	return tgbotapi.BaseChat{ChannelUsername: chatID}
}

func fromLibrary(u tgbotapi.Update) Update {
	out := Update{ID: int64(u.UpdateID)}
	if u.Message != nil {
		out.Text = strings.TrimSpace(u.Message.Text)
		if u.Message.Chat != nil {
			out.ChatID = strconv.FormatInt(u.Message.Chat.ID, 10)
		}
	}
	return out
}

// DecodeUpdate parses a single webhook update body.
func DecodeUpdate(r io.Reader) (Update, error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return Update{}, fmt.Errorf("telegram: decode update: %w", err)
	}
	return fromLibrary(u), nil
}

// GetUpdates long-polls for updates with id >= offset, waiting up to
// timeout for the server to respond.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+pollGrace)
	defer cancel()
	bot, d := c.call(ctx)

	raw, err := bot.GetUpdates(tgbotapi.UpdateConfig{
		Offset:  int(offset),
		Timeout: int(timeout / time.Second),
	})
	if err != nil {
		return nil, wrap("getUpdates", d, err)
	}
	out := make([]Update, 0, len(raw))
	for _, u := range raw {
		out = append(out, fromLibrary(u))
	}
	return out, nil
}

// SendText implements [notify.Transport] via sendMessage.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	bot, d := c.call(ctx)

	msg := tgbotapi.MessageConfig{BaseChat: chat(chatID), Text: text}
	if _, err := bot.Request(msg); err != nil {
		return wrap("sendMessage", d, err)
	}
	return nil
}

// SendClip implements [notify.Transport] via a multipart sendAudio upload.
func (c *Client) SendClip(ctx context.Context, chatID, path, caption string) error {
	if c.convert != nil {
		converted, err := c.convert(ctx, path)
		if err != nil {
			return fmt.Errorf("telegram: prepare clip: %w", err)
		}
		path = converted
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: open clip: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	bot, d := c.call(ctx)

	audio := tgbotapi.AudioConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: chat(chatID),
			File:     tgbotapi.FileReader{Name: filepath.Base(path), Reader: f},
		},
		Caption: caption,
	}
	if _, err := bot.Request(audio); err != nil {
		return wrap("sendAudio", d, err)
	}
	return nil
}
