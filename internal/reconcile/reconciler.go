package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"immortal-nexus-api/internal/client"
	"immortal-nexus-api/internal/wire"

	"go.uber.org/zap"
)

const defaultResyncTimeout = 15 * time.Second

var (
	errMissingSelf    = errors.New("self id required")
	errMissingFetcher = errors.New("fetcher dependency required")
)

// Callbacks are UI hooks. Each runs outside the reconciler's lock and may
// be nil.
type Callbacks struct {
	OnConversation  func(partnerID string, messages []wire.Message)
	OnNotifications func(items []wire.Notification, unread int)
	OnTyping        func(partnerID string, typing bool)
	OnPresence      func(userID string, online bool)
	OnReceipt       func(receipt wire.MessageDelivered)
}

// Config wires a Reconciler.
type Config struct {
	SelfID        string
	Fetcher       Fetcher
	Callbacks     Callbacks
	TypingTimeout time.Duration
	ResyncTimeout time.Duration
	Logger        *zap.Logger
}

// Source is the event stream a Reconciler attaches to.
type Source interface {
	Subscribe(handlers wire.Handlers) *client.Subscription
	OnStateChange(fn func(from, to client.Machine)) *client.Subscription
}

// Reconciler owns the client-side view. Pushes arrive on the transport's
// read goroutine while pulls run on the caller's, so all state is guarded.
type Reconciler struct {
	self          string
	fetcher       Fetcher
	callbacks     Callbacks
	typing        *TypingTracker
	logger        *zap.Logger
	resyncTimeout time.Duration

	mu            sync.Mutex
	conversations map[string]*Conversation
	notifications *Notifications
	presence      map[string]bool
	active        string
}

// New constructs a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.SelfID == "" {
		return nil, errMissingSelf
	}
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resyncTimeout := cfg.ResyncTimeout
	if resyncTimeout <= 0 {
		resyncTimeout = defaultResyncTimeout
	}
	r := &Reconciler{
		self:          cfg.SelfID,
		fetcher:       cfg.Fetcher,
		callbacks:     cfg.Callbacks,
		logger:        logger,
		resyncTimeout: resyncTimeout,
		conversations: make(map[string]*Conversation),
		notifications: NewNotifications(),
		presence:      make(map[string]bool),
	}
	r.typing = NewTypingTracker(cfg.TypingTimeout, func(partner string, typing bool) {
		if r.callbacks.OnTyping != nil {
			r.callbacks.OnTyping(partner, typing)
		}
	})
	return r, nil
}

// Attach subscribes to src. Every transition to connected, the first one
// included, resyncs: events recorded while this user had no connection are
// replayed, then the active conversation and the notifications are pulled.
func (r *Reconciler) Attach(src Source) func() {
	events := src.Subscribe(r.Handlers())
	states := src.OnStateChange(func(from, to client.Machine) {
		if to.State != client.StateConnected || from.State == client.StateConnected {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.resyncTimeout)
			defer cancel()
			if err := r.Resync(ctx); err != nil {
				r.logger.Warn("resync after connect failed", zap.Error(err))
			}
		}()
	})
	return func() {
		events.Release()
		states.Release()
	}
}

// Handlers returns the typed handlers that apply pushed events.
func (r *Reconciler) Handlers() wire.Handlers {
	return wire.Handlers{
		OnNewMessage:        r.applyMessage,
		OnMessageDelivered:  r.applyReceipt,
		OnTyping:            r.applyTyping,
		OnUserStatus:        r.applyPresence,
		OnNotification:      r.applyNotification,
		OnNotificationCount: r.applyCount,
	}
}

// SetActiveConversation selects the conversation resynced on reconnect.
func (r *Reconciler) SetActiveConversation(partnerID string) {
	r.mu.Lock()
	r.active = partnerID
	r.mu.Unlock()
}

// SyncConversation pulls the history with partnerID and merges it.
func (r *Reconciler) SyncConversation(ctx context.Context, partnerID string) error {
	msgs, err := r.fetcher.Conversation(ctx, partnerID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	conv := r.conversationLocked(partnerID)
	added := conv.Merge(msgs...)
	snapshot := conv.Messages()
	r.mu.Unlock()

	if added > 0 && r.callbacks.OnConversation != nil {
		r.callbacks.OnConversation(partnerID, snapshot)
	}
	return nil
}

// SyncNotifications pulls the notification snapshot and adopts the server's
// unread count.
func (r *Reconciler) SyncNotifications(ctx context.Context) error {
	items, unread, err := r.fetcher.Notifications(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.notifications.Snapshot(items, unread)
	list, unread := r.notifications.Items(), r.notifications.Unread()
	r.mu.Unlock()

	if r.callbacks.OnNotifications != nil {
		r.callbacks.OnNotifications(list, unread)
	}
	return nil
}

// Resync replays missed events, then refreshes the active conversation and
// the notifications. Every step runs and failures are joined.
func (r *Reconciler) Resync(ctx context.Context) error {
	var errs []error
	if missed, err := r.fetcher.MissedEvents(ctx); err != nil {
		errs = append(errs, err)
	} else {
		handlers := r.Handlers()
		for _, evt := range missed {
			handlers.Dispatch(evt)
		}
	}

	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != "" {
		if err := r.SyncConversation(ctx, active); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.SyncNotifications(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Conversation returns the ordered messages exchanged with partnerID.
func (r *Reconciler) Conversation(partnerID string) []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.conversations[partnerID]; ok {
		return conv.Messages()
	}
	return nil
}

// Notifications returns the list, newest first, and the unread count.
func (r *Reconciler) Notifications() ([]wire.Notification, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notifications.Items(), r.notifications.Unread()
}

// MarkNotificationRead applies a local read. It reports whether the item
// was unread.
func (r *Reconciler) MarkNotificationRead(id string) bool {
	r.mu.Lock()
	changed := r.notifications.MarkRead(id)
	list, unread := r.notifications.Items(), r.notifications.Unread()
	r.mu.Unlock()

	if changed && r.callbacks.OnNotifications != nil {
		r.callbacks.OnNotifications(list, unread)
	}
	return changed
}

// IsTyping reports whether partnerID is typing right now.
func (r *Reconciler) IsTyping(partnerID string) bool {
	return r.typing.IsTyping(partnerID)
}

// Online reports the last known presence of userID.
func (r *Reconciler) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence[userID]
}

// Close stops typing timers.
func (r *Reconciler) Close() {
	r.typing.Stop()
}

func (r *Reconciler) conversationLocked(partnerID string) *Conversation {
	conv, ok := r.conversations[partnerID]
	if !ok {
		conv = NewConversation()
		r.conversations[partnerID] = conv
	}
	return conv
}

func (r *Reconciler) applyMessage(e wire.NewMessage) {
	msg := e.Message
	partner := msg.SenderID
	if partner == r.self {
		partner = msg.RecipientID
	}
	if partner == "" {
		return
	}
	r.mu.Lock()
	conv := r.conversationLocked(partner)
	added := conv.Merge(msg)
	snapshot := conv.Messages()
	r.mu.Unlock()

	if msg.SenderID == partner {
		// a delivered message ends the sender's typing indicator
		r.typing.Clear(partner)
	}
	if added > 0 && r.callbacks.OnConversation != nil {
		r.callbacks.OnConversation(partner, snapshot)
	}
}

func (r *Reconciler) applyReceipt(e wire.MessageDelivered) {
	if r.callbacks.OnReceipt != nil {
		r.callbacks.OnReceipt(e)
	}
}

func (r *Reconciler) applyTyping(e wire.Typing) {
	if e.SenderID == "" || e.SenderID == r.self {
		return
	}
	r.typing.Observe(e.SenderID, e.IsTyping)
}

func (r *Reconciler) applyPresence(e wire.UserStatus) {
	r.mu.Lock()
	changed := r.presence[e.UserID] != e.Online
	r.presence[e.UserID] = e.Online
	r.mu.Unlock()
	if !e.Online {
		r.typing.Clear(e.UserID)
	}
	if changed && r.callbacks.OnPresence != nil {
		r.callbacks.OnPresence(e.UserID, e.Online)
	}
}

func (r *Reconciler) applyNotification(e wire.NotificationPushed) {
	r.mu.Lock()
	added := r.notifications.Push(e.Notification)
	list, unread := r.notifications.Items(), r.notifications.Unread()
	r.mu.Unlock()

	if added && r.callbacks.OnNotifications != nil {
		r.callbacks.OnNotifications(list, unread)
	}
}

func (r *Reconciler) applyCount(e wire.NotificationCount) {
	r.mu.Lock()
	r.notifications.SetUnread(e.Unread)
	list, unread := r.notifications.Items(), r.notifications.Unread()
	r.mu.Unlock()

	if r.callbacks.OnNotifications != nil {
		r.callbacks.OnNotifications(list, unread)
	}
}
