// Package poller runs the remote operator control plane.
//
// A [Poller] owns two loops that share one stop signal. The update loop
// long-polls a [Feed] with a strictly increasing offset and dispatches each
// message's leading command token. The watch loop ticks on a fixed period
// and pushes calibration status to every chat with a due watch. Replies are
// best-effort: delivery failures are logged and dropped.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cryguard/internal/observe"
)

// Update is one inbound message from the remote feed.
type Update struct {
	// ID is the feed-assigned update identifier.
	ID int64

	// ChatID identifies the sender's chat. Empty for non-message updates.
	ChatID string

	// Text is the message body.
	Text string
}

// Feed is a long-polled source of operator updates.
type Feed interface {
	// GetUpdates blocks for up to timeout waiting for updates with
	// ID >= offset.
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Replier delivers a text reply to a chat.
type Replier interface {
	SendText(ctx context.Context, chatID, text string) error
}

// Handlers are the side-effecting callbacks behind the command table. A nil
// callback makes its command reply with an "unavailable" message.
type Handlers struct {
	// Register adds chatID as an alert recipient. It returns false when
	// registration is closed.
	Register func(ctx context.Context, chatID string) bool

	// Status reports overall service health.
	Status func(ctx context.Context) (bool, string)

	// Test captures and sends a microphone sample to chatID.
	Test func(ctx context.Context, chatID string) (bool, string)

	// CalStart activates calibration. interval is nil when omitted.
	CalStart func(ctx context.Context, phase string, interval *int) (bool, string)

	// CalSet applies one parameter override.
	CalSet func(ctx context.Context, param, value string) (bool, string)

	// CalParams describes the overrides and effective parameters.
	CalParams func(ctx context.Context) (bool, string)

	// CalStatus describes the live calibration status.
	CalStatus func(ctx context.Context) (bool, string)

	// CalStop deactivates calibration and returns the replay summary.
	CalStop func(ctx context.Context) (bool, string)

	// WatchInterval returns the default watch interval in seconds.
	WatchInterval func() int

	// HelpText returns the /cal reference.
	HelpText func() string
}

// Poller is the control-plane runner. Create with [New].
type Poller struct {
	feed     Feed
	replier  Replier
	handlers Handlers
	commands map[string]commandFunc
	watches  *watchRegistry
	metrics  *observe.Metrics

	enableTest  bool
	pollTimeout time.Duration
	backoff     time.Duration
	tick        time.Duration
	stopTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	offset int64
	cancel context.CancelFunc
	done   chan struct{}
}

// Option is a functional option for [New].
type Option func(*Poller)

// WithTestCommand enables the /test command.
func WithTestCommand(enabled bool) Option {
	return func(p *Poller) { p.enableTest = enabled }
}

// WithPollTimeout sets the long-poll wait passed to the feed. Default 25s.
func WithPollTimeout(d time.Duration) Option {
	return func(p *Poller) { p.pollTimeout = d }
}

// WithBackoff sets the delay after a failed poll. Default 2s.
func WithBackoff(d time.Duration) Option {
	return func(p *Poller) { p.backoff = d }
}

// WithWatchTick sets the watch loop period. Default 500ms.
func WithWatchTick(d time.Duration) Option {
	return func(p *Poller) { p.tick = d }
}

// WithStopTimeout bounds how long Stop waits for the loops. Default 5s.
func WithStopTimeout(d time.Duration) Option {
	return func(p *Poller) { p.stopTimeout = d }
}

// WithClock replaces time.Now for watch scheduling.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// New builds a Poller. feed and replier are required.
func New(feed Feed, replier Replier, h Handlers, opts ...Option) *Poller {
	p := &Poller{
		feed:        feed,
		replier:     replier,
		handlers:    h,
		pollTimeout: 25 * time.Second,
		backoff:     2 * time.Second,
		tick:        500 * time.Millisecond,
		stopTimeout: 5 * time.Second,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.watches = newWatchRegistry(p.metrics)
	p.commands = p.commandTable()
	return p
}

// Start launches both loops. Calling Start on a running Poller is a no-op;
// once the loops have exited the Poller can be started again.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { p.updateLoop(gctx); return nil })
	g.Go(func() error { p.watchLoop(gctx); return nil })

	done := p.done
	go func() {
		_ = g.Wait()
		cancel()
		p.mu.Lock()
		if p.done == done {
			p.cancel, p.done = nil, nil
		}
		p.mu.Unlock()
		close(done)
	}()
	slog.Info("poller: started")
}

// Stop signals both loops and waits up to the stop timeout for them to exit.
// It returns an error if the loops did not exit in time.
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		slog.Info("poller: stopped")
		return nil
	case <-time.After(p.stopTimeout):
		return errors.New("poller: loops did not exit before stop timeout")
	}
}

// Offset returns the next update offset requested from the feed.
func (p *Poller) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// updateLoop long-polls the feed until ctx is cancelled.
func (p *Poller) updateLoop(ctx context.Context) {
	for ctx.Err() == nil {
		updates, err := p.feed.GetUpdates(ctx, p.Offset(), p.pollTimeout)
		if ctx.Err() != nil {
			return
		}
		p.metrics.RecordPoll(ctx, err)
		if err != nil {
			slog.Error("poller: poll failed", "err", err)
			if !sleepCtx(ctx, p.backoff) {
				return
			}
			continue
		}
		for _, u := range updates {
			p.advance(u.ID)
			p.HandleUpdate(ctx, u)
		}
	}
}

// advance moves the offset past id. The offset never decreases.
func (p *Poller) advance(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = max(p.offset, id+1)
}

// watchLoop pushes due status watches every tick until ctx is cancelled.
func (p *Poller) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunDueWatches(ctx)
		}
	}
}

// RunDueWatches pushes status to every chat whose watch is due. The watch
// loop calls it once per tick.
func (p *Poller) RunDueWatches(ctx context.Context) {
	now := p.now()
	for _, chatID := range p.watches.due(now) {
		if p.handlers.CalStatus == nil {
			p.reply(ctx, chatID, "Calibration status command is unavailable.")
			p.watches.remove(chatID)
			continue
		}
		ok, detail := p.handlers.CalStatus(ctx)
		p.reply(ctx, chatID, prefixed("Calibration", ok, detail))
		p.metrics.RecordWatchPush(ctx, ok)
		p.watches.reschedule(chatID, now)
		if !ok {
			p.watches.remove(chatID)
		}
	}
}

// reply sends text to chatID and swallows delivery failures.
func (p *Poller) reply(ctx context.Context, chatID, text string) {
	if err := p.replier.SendText(ctx, chatID, text); err != nil {
		slog.Warn("poller: reply failed", "chat_id", chatID, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
