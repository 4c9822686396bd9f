package realtime

import (
	"sort"
	"sync"
	"time"

	"immortal-nexus-api/internal/metrics"

	"go.uber.org/zap"
)

// Conn is one live transport session. Send must not block: it hands the
// frame to the connection's own ordered writer or fails.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close()
}

// PresenceFunc is told when an identity gains its first connection or loses
// its last one.
type PresenceFunc func(identity string, online bool, at time.Time)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger *zap.Logger
	Clock  func() time.Time
}

// Registry maps user identities to their live connections.
// A user may hold several connections at once (one per browser tab).
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]map[string]*registration
	byConn     map[string]*registration
	onPresence PresenceFunc
	// transitions queues presence changes under mu; whoever holds hookMu
	// drains it, so the hook sees them in the order they happened.
	transitions []presenceTransition
	hookMu      sync.Mutex

	clock  func() time.Time
	logger *zap.Logger
}

type presenceTransition struct {
	identity string
	online   bool
	at       time.Time
}

type registration struct {
	identity     string
	conn         Conn
	lastActivity time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		byIdentity: make(map[string]map[string]*registration),
		byConn:     make(map[string]*registration),
		clock:      clock,
		logger:     logger,
	}
}

// SetPresenceHook installs the presence callback. It is called outside the
// registry lock, one call at a time, in the order the transitions
// happened. It must not register or unregister connections.
func (r *Registry) SetPresenceHook(fn PresenceFunc) {
	r.mu.Lock()
	r.onPresence = fn
	r.mu.Unlock()
}

// Register adds a connection for identity and reports whether it is the
// identity's first live connection.
func (r *Registry) Register(identity string, conn Conn) bool {
	r.mu.Lock()
	now := r.clock()
	if _, exists := r.byConn[conn.ID()]; exists {
		r.mu.Unlock()
		return false
	}
	conns, ok := r.byIdentity[identity]
	if !ok {
		conns = make(map[string]*registration)
		r.byIdentity[identity] = conns
	}
	reg := &registration{identity: identity, conn: conn, lastActivity: now}
	conns[conn.ID()] = reg
	r.byConn[conn.ID()] = reg
	first := len(conns) == 1
	if first {
		r.transitions = append(r.transitions, presenceTransition{identity: identity, online: true, at: now})
	}
	r.updateGauges()
	r.mu.Unlock()

	r.logger.Debug("connection registered",
		zap.String("user_id", identity),
		zap.String("connection_id", conn.ID()),
		zap.Bool("first", first),
	)
	if first {
		r.firePresence()
	}
	return first
}

// Unregister removes and closes a connection. It returns the owning identity
// and whether that was its last connection. Unknown connections are ignored.
func (r *Registry) Unregister(conn Conn) (string, bool) {
	r.mu.Lock()
	now := r.clock()
	reg, ok := r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.byConn, conn.ID())
	last := false
	if conns, ok := r.byIdentity[reg.identity]; ok {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(r.byIdentity, reg.identity)
			last = true
		}
	}
	if last {
		r.transitions = append(r.transitions, presenceTransition{identity: reg.identity, online: false, at: now})
	}
	r.updateGauges()
	r.mu.Unlock()

	reg.conn.Close()
	r.logger.Debug("connection unregistered",
		zap.String("user_id", reg.identity),
		zap.String("connection_id", conn.ID()),
		zap.Bool("last", last),
	)
	if last {
		r.firePresence()
	}
	return reg.identity, last
}

// ConnectionsFor returns a snapshot of identity's live connections. An empty
// result means the user is offline.
func (r *Registry) ConnectionsFor(identity string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byIdentity[identity]
	if len(conns) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(conns))
	for _, reg := range conns {
		out = append(out, reg.conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Touch records activity on a connection.
func (r *Registry) Touch(conn Conn) {
	now := r.clock()
	r.mu.Lock()
	if reg, ok := r.byConn[conn.ID()]; ok {
		reg.lastActivity = now
	}
	r.mu.Unlock()
}

// IsOnline reports whether identity has at least one connection.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

// Online returns the sorted identities with at least one connection.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// PruneIdle unregisters connections with no activity for longer than idle and
// returns how many were removed.
func (r *Registry) PruneIdle(idle time.Duration) int {
	cutoff := r.clock().Add(-idle)

	r.mu.RLock()
	var stale []Conn
	for _, reg := range r.byConn {
		if reg.lastActivity.Before(cutoff) {
			stale = append(stale, reg.conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range stale {
		identity, _ := r.Unregister(conn)
		r.logger.Info("pruned idle connection",
			zap.String("user_id", identity),
			zap.String("connection_id", conn.ID()),
		)
	}
	return len(stale)
}

// firePresence hands queued transitions to the hook in order.
func (r *Registry) firePresence() {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	for {
		r.mu.Lock()
		if len(r.transitions) == 0 {
			r.mu.Unlock()
			return
		}
		next := r.transitions[0]
		r.transitions = r.transitions[1:]
		hook := r.onPresence
		r.mu.Unlock()

		if hook != nil {
			hook(next.identity, next.online, next.at)
		}
	}
}

// updateGauges must be called with r.mu held.
func (r *Registry) updateGauges() {
	metrics.WebSocketConnections.Set(float64(len(r.byConn)))
	metrics.OnlineUsers.Set(float64(len(r.byIdentity)))
}
