package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/cryguard/internal/calibration"
)

// commandFunc handles one command. text is the full trimmed message.
type commandFunc func(ctx context.Context, chatID, text string)

// Command tokens.
const (
	CmdStart        = "/start"
	CmdStatus       = "/status"
	CmdTest         = "/test"
	CmdCal          = "/cal"
	CmdCalStart     = "/cal_start"
	CmdCalSet       = "/cal_set"
	CmdCalParams    = "/cal_params"
	CmdCalStatus    = "/cal_status"
	CmdCalWatch     = "/cal_watch"
	CmdCalWatchStop = "/cal_watch_stop"
	CmdCalStop      = "/cal_stop"
)

func (p *Poller) commandTable() map[string]commandFunc {
	return map[string]commandFunc{
		CmdStart:        p.handleStart,
		CmdStatus:       p.handleStatus,
		CmdTest:         p.handleTest,
		CmdCal:          p.handleCalHelp,
		CmdCalStart:     p.handleCalStart,
		CmdCalSet:       p.handleCalSet,
		CmdCalParams:    p.handleCalParams,
		CmdCalStatus:    p.handleCalStatus,
		CmdCalWatch:     p.handleCalWatch,
		CmdCalWatchStop: p.handleCalWatchStop,
		CmdCalStop:      p.handleCalStop,
	}
}

// HandleUpdate dispatches one update. Updates without a chat or text and
// unknown commands are ignored.
func (p *Poller) HandleUpdate(ctx context.Context, u Update) {
	text := strings.TrimSpace(u.Text)
	chatID := strings.TrimSpace(u.ChatID)
	if chatID == "" || text == "" {
		return
	}
	cmd := strings.ToLower(strings.Fields(text)[0])
	fn, ok := p.commands[cmd]
	if !ok {
		return
	}
	p.metrics.RecordCommand(ctx, cmd)
	slog.Debug("poller: command", "command", cmd, "chat_id", chatID)
	fn(ctx, chatID, text)
}

// prefixed formats "<label>: OK. detail" or "<label>: ERROR. detail".
func prefixed(label string, ok bool, detail string) string {
	state := "ERROR"
	if ok {
		state = "OK"
	}
	return fmt.Sprintf("%s: %s. %s", label, state, detail)
}

func (p *Poller) handleStart(ctx context.Context, chatID, _ string) {
	if p.handlers.Register != nil && p.handlers.Register(ctx, chatID) {
		slog.Info("poller: registered chat", "chat_id", chatID)
		p.reply(ctx, chatID, "Registration successful. You will receive baby-cry alerts.")
		return
	}
	p.reply(ctx, chatID, "Registration is currently closed.")
}

func (p *Poller) handleStatus(ctx context.Context, chatID, _ string) {
	if p.handlers.Status == nil {
		p.reply(ctx, chatID, prefixed("Status", false, "status check unavailable"))
		return
	}
	ok, detail := p.handlers.Status(ctx)
	p.reply(ctx, chatID, prefixed("Status", ok, detail))
}

func (p *Poller) handleTest(ctx context.Context, chatID, _ string) {
	if !p.enableTest || p.handlers.Test == nil {
		p.reply(ctx, chatID, "Test command is disabled.")
		return
	}
	ok, detail := p.handlers.Test(ctx, chatID)
	p.reply(ctx, chatID, prefixed("Test", ok, detail))
}

func (p *Poller) handleCalHelp(ctx context.Context, chatID, _ string) {
	if p.handlers.HelpText == nil {
		p.reply(ctx, chatID, "Calibration commands are unavailable.")
		return
	}
	p.reply(ctx, chatID, p.handlers.HelpText())
}

func (p *Poller) handleCalStart(ctx context.Context, chatID, text string) {
	if p.handlers.CalStart == nil {
		p.reply(ctx, chatID, "Calibration start is unavailable.")
		return
	}
	parts := strings.Fields(text)
	if len(parts) < 2 {
		p.reply(ctx, chatID, "Usage: /cal_start phase1|phase2 [interval_sec]")
		return
	}
	phase := strings.ToLower(parts[1])
	var interval *int
	if len(parts) >= 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			p.reply(ctx, chatID, "Interval must be an integer number of seconds.")
			return
		}
		interval = &n
	}
	ok, detail := p.handlers.CalStart(ctx, phase, interval)
	p.reply(ctx, chatID, prefixed("Calibration start", ok, detail))
}

func (p *Poller) handleCalSet(ctx context.Context, chatID, text string) {
	if p.handlers.CalSet == nil {
		p.reply(ctx, chatID, "Calibration parameter updates are unavailable.")
		return
	}
	parts := splitN(text, 3)
	if len(parts) < 3 {
		p.reply(ctx, chatID, "Usage: /cal_set <param> <value>")
		return
	}
	ok, detail := p.handlers.CalSet(ctx, parts[1], parts[2])
	p.reply(ctx, chatID, prefixed("Calibration set", ok, detail))
}

func (p *Poller) handleCalParams(ctx context.Context, chatID, _ string) {
	if p.handlers.CalParams == nil {
		p.reply(ctx, chatID, "Calibration params are unavailable.")
		return
	}
	ok, detail := p.handlers.CalParams(ctx)
	p.reply(ctx, chatID, prefixed("Calibration params", ok, detail))
}

func (p *Poller) handleCalStatus(ctx context.Context, chatID, _ string) {
	if p.handlers.CalStatus == nil {
		p.reply(ctx, chatID, "Calibration status is unavailable.")
		return
	}
	ok, detail := p.handlers.CalStatus(ctx)
	p.reply(ctx, chatID, prefixed("Calibration", ok, detail))
}

func (p *Poller) handleCalWatch(ctx context.Context, chatID, text string) {
	parts := strings.Fields(text)
	var seconds float64
	if len(parts) >= 2 {
		f, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			p.reply(ctx, chatID, "Usage: /cal_watch [interval_sec]")
			return
		}
		seconds = f
	} else {
		seconds = calibration.DefaultInterval
		if p.handlers.WatchInterval != nil {
			seconds = float64(p.handlers.WatchInterval())
		}
	}
	if math.IsNaN(seconds) {
		seconds = calibration.MinInterval
	}
	seconds = max(calibration.MinInterval, min(seconds, calibration.MaxInterval))

	p.watches.add(chatID, time.Duration(seconds*float64(time.Second)), p.now())
	p.reply(ctx, chatID, fmt.Sprintf("Calibration watch enabled every %ds. Use /cal_watch_stop to stop.", int(seconds)))
}

func (p *Poller) handleCalWatchStop(ctx context.Context, chatID, _ string) {
	if p.watches.remove(chatID) {
		p.reply(ctx, chatID, "Calibration watch stopped.")
		return
	}
	p.reply(ctx, chatID, "Calibration watch is not active for this chat.")
}

func (p *Poller) handleCalStop(ctx context.Context, chatID, _ string) {
	if p.handlers.CalStop == nil {
		p.reply(ctx, chatID, "Calibration stop is unavailable.")
		return
	}
	ok, detail := p.handlers.CalStop(ctx)
	p.reply(ctx, chatID, prefixed("Calibration stop", ok, detail))
	if ok {
		p.watches.clear()
	}
}

// splitN splits text on runs of whitespace into at most n fields; the last
// field keeps the remainder with its inner spacing.
func splitN(text string, n int) []string {
	var out []string
	rest := strings.TrimSpace(text)
	for len(out) < n-1 && rest != "" {
		i := strings.IndexFunc(rest, isSpace)
		if i < 0 {
			break
		}
		out = append(out, rest[:i])
		rest = strings.TrimLeftFunc(rest[i:], isSpace)
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
