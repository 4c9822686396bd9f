package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"immortal-nexus-api/internal/cache"
	"immortal-nexus-api/internal/metrics"
	"immortal-nexus-api/internal/wire"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultDedupTTL       = 5 * time.Minute
	defaultPersistTimeout = 10 * time.Second
)

var (
	errMissingRegistry  = errors.New("registry dependency required")
	errMissingPersister = errors.New("persister dependency required")
)

// DeliveryState is the outcome of routing one event to one recipient.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateDelivered DeliveryState = "delivered"
	StatePersisted DeliveryState = "persisted"
	StateDropped   DeliveryState = "dropped"
)

// OutboundEvent is one event addressed to every connection of one user.
type OutboundEvent struct {
	// ID identifies the logical event. Routing the same ID twice never writes
	// it twice to the same connection. Assigned by Route when empty.
	ID        string
	Recipient string
	Event     wire.Event
	// BestEffort events are dropped instead of persisted when the recipient
	// is offline, like typing indicators. Used for echoes to the originator's
	// own tabs, which already hold the data.
	BestEffort bool
	// CreatedAt orders persisted copies. Route stamps it when zero.
	CreatedAt time.Time
	State     DeliveryState
}

// Persister durably records an event for a recipient with no live connection.
type Persister interface {
	PersistEvent(ctx context.Context, recipient, eventID string, event wire.Event, at time.Time) error
}

// PartnerLookup resolves the identities interested in a user's presence.
type PartnerLookup interface {
	Partners(ctx context.Context, identity string) ([]string, error)
}

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Registry       *Registry
	Persister      Persister
	Partners       PartnerLookup
	Logger         *zap.Logger
	DedupTTL       time.Duration
	PersistTimeout time.Duration
	Clock          func() time.Time
}

// Router fans events out to live connections and falls back to persistence
// when the recipient is offline.
type Router struct {
	registry       *Registry
	persister      Persister
	partners       PartnerLookup
	logger         *zap.Logger
	seen           cache.Cache[string, struct{}]
	dedupTTL       time.Duration
	persistTimeout time.Duration
	clock          func() time.Time

	wg sync.WaitGroup

	presenceMu      sync.Mutex
	presenceQueue   []presenceChange
	presenceRunning bool
}

type presenceChange struct {
	identity string
	online   bool
	at       time.Time
}

// NewRouter constructs a Router and installs its presence hook on the registry.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Persister == nil {
		return nil, errMissingPersister
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dedupTTL := cfg.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = defaultDedupTTL
	}
	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := &Router{
		registry:       cfg.Registry,
		persister:      cfg.Persister,
		partners:       cfg.Partners,
		logger:         logger,
		seen:           cache.NewSimpleCache[string, struct{}](cache.Options{ConcurrencySafe: true, Clock: clock}),
		dedupTTL:       dedupTTL,
		persistTimeout: persistTimeout,
		clock:          clock,
	}
	cfg.Registry.SetPresenceHook(r.presenceChanged)
	return r, nil
}

// Route delivers evt to every live connection of its recipient. The only
// blocking work is the registry lookup; sends are queued on each connection
// and persistence runs in the background.
func (r *Router) Route(ctx context.Context, evt OutboundEvent) OutboundEvent {
	if evt.Recipient == "" || evt.Event == nil {
		r.logger.Warn("dropping event without recipient or payload", zap.String("event_id", evt.ID))
		evt.State = StateDropped
		return evt
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = r.clock()
	}
	kind := string(evt.Event.Kind())
	evt.State = StatePending

	frame, err := wire.Encode(evt.Event)
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("kind", kind), zap.Error(err))
		evt.State = StateDropped
		metrics.RecordRouted(kind, string(evt.State))
		return evt
	}

	delivered := 0
	for _, conn := range r.registry.ConnectionsFor(evt.Recipient) {
		key := evt.ID + "|" + conn.ID()
		if !r.seen.Add(key, struct{}{}, r.dedupTTL) {
			delivered++
			continue
		}
		if err := conn.Send(frame); err != nil {
			r.seen.Delete(key)
			metrics.SendFailures.WithLabelValues(sendFailureReason(err)).Inc()
			r.logger.Warn("send failed, dropping connection",
				zap.String("user_id", evt.Recipient),
				zap.String("connection_id", conn.ID()),
				zap.String("kind", kind),
				zap.Error(err),
			)
			r.registry.Unregister(conn)
			continue
		}
		delivered++
	}

	switch {
	case delivered > 0:
		evt.State = StateDelivered
	case evt.BestEffort || evt.Event.Kind() == wire.KindTyping:
		evt.State = StateDropped
	default:
		r.persistAsync(ctx, evt)
		evt.State = StatePersisted
	}
	metrics.RecordRouted(kind, string(evt.State))
	return evt
}

// RouteAll routes evt to each recipient under one shared ID. evt.Recipient
// is ignored.
func (r *Router) RouteAll(ctx context.Context, evt OutboundEvent, recipients []string) []OutboundEvent {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = r.clock()
	}
	results := make([]OutboundEvent, 0, len(recipients))
	for _, recipient := range recipients {
		out := evt
		out.Recipient = recipient
		results = append(results, r.Route(ctx, out))
	}
	return results
}

// Wait blocks until background persistence and presence work has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// PurgeDedup drops expired delivery records.
func (r *Router) PurgeDedup() int {
	return len(r.seen.PurgeExpired())
}

// RunMaintenance prunes idle connections and expired delivery records every
// interval until ctx is done.
func (r *Router) RunMaintenance(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := r.registry.PruneIdle(idle)
			purged := r.PurgeDedup()
			if pruned > 0 || purged > 0 {
				r.logger.Debug("realtime maintenance", zap.Int("pruned", pruned), zap.Int("purged", purged))
			}
		}
	}
}

func (r *Router) persistAsync(ctx context.Context, evt OutboundEvent) {
	// the originating request may finish before the write does
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(base, r.persistTimeout)
		defer cancel()
		if err := r.persister.PersistEvent(writeCtx, evt.Recipient, evt.ID, evt.Event, evt.CreatedAt); err != nil {
			metrics.PersistFailures.Inc()
			r.logger.Error("failed to persist event for offline user",
				zap.String("user_id", evt.Recipient),
				zap.String("event_id", evt.ID),
				zap.String("kind", string(evt.Event.Kind())),
				zap.Error(err),
			)
			return
		}
		r.logger.Debug("persisted event for offline user",
			zap.String("user_id", evt.Recipient),
			zap.String("event_id", evt.ID),
		)
	}()
}

// presenceChanged queues a presence change for the single presence worker,
// so partners receive one user's changes in the order they happened.
func (r *Router) presenceChanged(identity string, online bool, at time.Time) {
	if r.partners == nil {
		return
	}
	r.presenceMu.Lock()
	defer r.presenceMu.Unlock()
	r.presenceQueue = append(r.presenceQueue, presenceChange{identity: identity, online: online, at: at})
	if r.presenceRunning {
		return
	}
	r.presenceRunning = true
	r.wg.Add(1)
	go r.drainPresence()
}

func (r *Router) drainPresence() {
	defer r.wg.Done()
	for {
		r.presenceMu.Lock()
		if len(r.presenceQueue) == 0 {
			r.presenceRunning = false
			r.presenceMu.Unlock()
			return
		}
		change := r.presenceQueue[0]
		r.presenceQueue = r.presenceQueue[1:]
		r.presenceMu.Unlock()

		r.publishPresence(change)
	}
}

func (r *Router) publishPresence(change presenceChange) {
	ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
	defer cancel()
	partners, err := r.partners.Partners(ctx, change.identity)
	if err != nil {
		r.logger.Warn("failed to resolve presence partners", zap.String("user_id", change.identity), zap.Error(err))
		return
	}
	r.RouteAll(ctx, OutboundEvent{
		Event:     wire.UserStatus{UserID: change.identity, Online: change.online, LastSeen: change.at.UTC()},
		CreatedAt: change.at,
	}, partners)
}

// ErrSendQueueFull is returned by connections whose outbound queue is full.
var ErrSendQueueFull = errors.New("send queue full")

// ErrConnClosed is returned by connections that are already closed.
var ErrConnClosed = errors.New("connection closed")

func sendFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrSendQueueFull):
		return "queue_full"
	case errors.Is(err, ErrConnClosed):
		return "closed"
	default:
		return "write_error"
	}
}
