package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"immortal-nexus-api/internal/wire"
)

type fakeConn struct {
	id string

	mu      sync.Mutex
	frames  [][]byte
	failErr error
	closed  bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.failErr != nil {
		return c.failErr
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events() []wire.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Event, 0, len(c.frames))
	for _, f := range c.frames {
		evt, err := wire.Decode(f)
		if err != nil {
			panic(err)
		}
		out = append(out, evt)
	}
	return out
}

type persistedEvent struct {
	recipient string
	eventID   string
	event     wire.Event
	at        time.Time
}

type fakePersister struct {
	mu     sync.Mutex
	events []persistedEvent
	err    error
}

func (p *fakePersister) PersistEvent(_ context.Context, recipient, eventID string, event wire.Event, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, persistedEvent{recipient: recipient, eventID: eventID, event: event, at: at})
	return nil
}

func (p *fakePersister) snapshot() []persistedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persistedEvent(nil), p.events...)
}

type staticPartners map[string][]string

func (s staticPartners) Partners(_ context.Context, identity string) ([]string, error) {
	if ids, ok := s[identity]; ok {
		return ids, nil
	}
	return nil, errors.New("unknown identity")
}

// slowPartners stalls the first lookup for slowIdentity.
type slowPartners struct {
	staticPartners
	slowIdentity string
	delay        time.Duration
	once         sync.Once
}

func (s *slowPartners) Partners(ctx context.Context, identity string) ([]string, error) {
	if identity == s.slowIdentity {
		s.once.Do(func() { time.Sleep(s.delay) })
	}
	return s.staticPartners.Partners(ctx, identity)
}
