package poller

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/cryguard/internal/calibration"
	"github.com/MrWong99/cryguard/internal/observe"
)

// watch is one chat's periodic status subscription.
type watch struct {
	interval time.Duration
	next     time.Time
}

// watchRegistry is the chat-keyed watch table shared by the update loop
// (add, remove, clear) and the watch loop (due, reschedule).
type watchRegistry struct {
	mu      sync.Mutex
	watches map[string]*watch
	metrics *observe.Metrics
}

func newWatchRegistry(m *observe.Metrics) *watchRegistry {
	return &watchRegistry{watches: make(map[string]*watch), metrics: m}
}

// add registers or replaces the watch for chatID, due immediately.
func (r *watchRegistry) add(chatID string, interval time.Duration, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[chatID]; !ok {
		r.metrics.ActiveWatches.Add(context.Background(), 1)
	}
	r.watches[chatID] = &watch{interval: interval, next: now}
}

// remove deletes the watch for chatID and reports whether one existed.
func (r *watchRegistry) remove(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[chatID]; !ok {
		return false
	}
	delete(r.watches, chatID)
	r.metrics.ActiveWatches.Add(context.Background(), -1)
	return true
}

func (r *watchRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.ActiveWatches.Add(context.Background(), -int64(len(r.watches)))
	clear(r.watches)
}

// due returns the chats whose next fire time is not after now, sorted.
func (r *watchRegistry) due(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, w := range r.watches {
		if !now.Before(w.next) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// reschedule sets next = now + max(MinInterval, interval) if the watch still
// exists.
func (r *watchRegistry) reschedule(chatID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[chatID]
	if !ok {
		return
	}
	w.next = now.Add(max(time.Duration(calibration.MinInterval)*time.Second, w.interval))
}

func (r *watchRegistry) get(chatID string) (watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[chatID]
	if !ok {
		return watch{}, false
	}
	return *w, true
}

func (r *watchRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}
