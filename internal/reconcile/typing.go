package reconcile

import (
	"sync"
	"time"
)

// DefaultTypingTimeout is how long a typing indicator lasts without a refresh.
const DefaultTypingTimeout = 3 * time.Second

// TypingTracker holds ephemeral typing indicators. An indicator expires
// after the timeout unless refreshed; expiry calls onChange without any
// network traffic.
type TypingTracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	active   map[string]*typingEntry
	onChange func(partner string, typing bool)
	nextGen  uint64
}

type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

// NewTypingTracker returns a tracker. onChange may be nil.
func NewTypingTracker(timeout time.Duration, onChange func(partner string, typing bool)) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	if onChange == nil {
		onChange = func(string, bool) {}
	}
	return &TypingTracker{
		timeout:  timeout,
		active:   make(map[string]*typingEntry),
		onChange: onChange,
	}
}

// Observe records a typing signal from partner.
func (t *TypingTracker) Observe(partner string, typing bool) {
	if !typing {
		t.Clear(partner)
		return
	}
	t.mu.Lock()
	entry, wasTyping := t.active[partner]
	if wasTyping {
		entry.timer.Stop()
	}
	t.nextGen++
	gen := t.nextGen
	t.active[partner] = &typingEntry{
		gen:   gen,
		timer: time.AfterFunc(t.timeout, func() { t.expire(partner, gen) }),
	}
	t.mu.Unlock()

	if !wasTyping {
		t.onChange(partner, true)
	}
}

// Clear removes partner's indicator immediately.
func (t *TypingTracker) Clear(partner string) {
	t.mu.Lock()
	entry, ok := t.active[partner]
	if ok {
		entry.timer.Stop()
		delete(t.active, partner)
	}
	t.mu.Unlock()

	if ok {
		t.onChange(partner, false)
	}
}

// IsTyping reports whether partner has a live indicator.
func (t *TypingTracker) IsTyping(partner string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[partner]
	return ok
}

// Stop cancels every timer without callbacks.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for partner, entry := range t.active {
		entry.timer.Stop()
		delete(t.active, partner)
	}
}

func (t *TypingTracker) expire(partner string, gen uint64) {
	t.mu.Lock()
	entry, ok := t.active[partner]
	if !ok || entry.gen != gen {
		// refreshed or cleared since this timer was armed
		t.mu.Unlock()
		return
	}
	delete(t.active, partner)
	t.mu.Unlock()

	t.onChange(partner, false)
}
