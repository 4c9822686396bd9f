package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"immortal-nexus-api/internal/wire"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNoToken is returned by Connect when there is no token to present.
	ErrNoToken = errors.New("no authentication token")
	// ErrUnauthorized is returned when the server rejects the token during
	// the handshake. The transport does not retry.
	ErrUnauthorized = errors.New("authentication rejected")

	errMissingURL = errors.New("websocket url required")
)

const (
	defaultWriteWait   = 5 * time.Second
	defaultReadTimeout = 75 * time.Second
)

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource func() string

// StaticToken is a TokenSource for a fixed token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// Options configures a Transport.
type Options struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8008/ws.
	URL    string
	Token  TokenSource
	Policy Policy
	Dialer *websocket.Dialer
	Logger *zap.Logger
	// ReadTimeout closes a socket that has been silent this long. The server
	// pings well inside it.
	ReadTimeout time.Duration
	WriteWait   time.Duration
}

// Transport owns one logical real-time connection across reconnects.
type Transport struct {
	url         *url.URL
	token       TokenSource
	dialer      *websocket.Dialer
	logger      *zap.Logger
	readTimeout time.Duration
	writeWait   time.Duration

	mu        sync.Mutex
	machine   Machine
	conn      *websocket.Conn
	gen       int
	timer     *time.Timer
	ctx       context.Context
	stopCtx   func() bool
	subs      []subscriber
	listeners []stateListener
	nextID    int

	writeMu sync.Mutex
}

type subscriber struct {
	id       int
	handlers wire.Handlers
}

type stateListener struct {
	id int
	fn func(from, to Machine)
}

// NewTransport constructs a disconnected Transport.
func NewTransport(opts Options) (*Transport, error) {
	if opts.URL == "" {
		return nil, errMissingURL
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	token := opts.Token
	if token == nil {
		token = StaticToken("")
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	writeWait := opts.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &Transport{
		url:         u,
		token:       token,
		dialer:      dialer,
		logger:      logger,
		readTimeout: readTimeout,
		writeWait:   writeWait,
		machine:     NewMachine(opts.Policy),
		ctx:         context.Background(),
	}, nil
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine.State
}

// Snapshot returns a copy of the reconnection state.
func (t *Transport) Snapshot() Machine {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.machine
}

// Connect starts connecting. It fails fast with ErrNoToken when there is no
// token and with ErrUnauthorized when the handshake is rejected. Transient
// dial failures are retried in the background; watch OnStateChange.
// Cancelling ctx logs the transport out.
func (t *Transport) Connect(ctx context.Context) error {
	if t.token() == "" {
		return ErrNoToken
	}
	t.mu.Lock()
	if t.stopCtx != nil {
		t.stopCtx()
	}
	t.ctx = ctx
	t.stopCtx = context.AfterFunc(ctx, t.Logout)
	t.mu.Unlock()

	if eff := t.step(Input{Kind: InputConnect}); eff.Kind == EffectDial {
		return t.dial(ctx)
	}
	return nil
}

// Send writes an event to the server. It returns false unless the transport
// is connected; nothing is queued for later.
func (t *Transport) Send(event wire.Event) bool {
	t.mu.Lock()
	conn, state := t.conn, t.machine.State
	t.mu.Unlock()
	if conn == nil || state != StateConnected {
		return false
	}
	frame, err := wire.Encode(event)
	if err != nil {
		t.logger.Warn("failed to encode outbound event", zap.Error(err))
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

// Logout cancels any pending reconnect and closes the socket normally. The
// transport stays disconnected until Connect is called again.
func (t *Transport) Logout() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.gen++
	t.mu.Unlock()

	t.step(Input{Kind: InputLogout})

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
			time.Now().Add(t.writeWait))
		t.writeMu.Unlock()
		_ = conn.Close()
	}
}

// Subscription is a registered handler set. Release unregisters it.
type Subscription struct {
	once    sync.Once
	release func()
}

// Release stops further callbacks. Safe to call more than once.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(s.release)
}

// Subscribe registers typed event handlers. Handlers run on the read
// goroutine in arrival order; a panicking handler is logged and skipped.
func (t *Transport) Subscribe(handlers wire.Handlers) *Subscription {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber{id: id, handlers: handlers})
	t.mu.Unlock()
	return &Subscription{release: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}}
}

// OnStateChange registers fn for every state transition.
func (t *Transport) OnStateChange(fn func(from, to Machine)) *Subscription {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, stateListener{id: id, fn: fn})
	t.mu.Unlock()
	return &Subscription{release: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				return
			}
		}
	}}
}

// step feeds the machine, arms or cancels the retry timer, and notifies
// state listeners outside the lock. Dial effects are returned to the caller.
func (t *Transport) step(in Input) Effect {
	t.mu.Lock()
	from := t.machine
	to, eff := from.Next(in)
	t.machine = to
	switch eff.Kind {
	case EffectScheduleRetry:
		if t.timer != nil {
			t.timer.Stop()
		}
		t.timer = time.AfterFunc(eff.Delay, t.retry)
	case EffectClose:
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
	}
	var listeners []stateListener
	if from.State != to.State {
		listeners = append(listeners, t.listeners...)
	}
	t.mu.Unlock()

	if eff.Kind == EffectScheduleRetry {
		t.logger.Info("websocket reconnect scheduled",
			zap.Int("attempt", to.Attempt),
			zap.Duration("delay", eff.Delay),
		)
	}
	if to.State == StateDisconnected && from.State != StateDisconnected {
		t.logger.Info("websocket disconnected", zap.String("reason", string(to.Reason)))
	}
	for _, l := range listeners {
		t.notify(l, from, to)
	}
	return eff
}

func (t *Transport) notify(l stateListener, from, to Machine) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("state listener panicked", zap.Any("panic", r))
		}
	}()
	l.fn(from, to)
}

func (t *Transport) retry() {
	t.mu.Lock()
	t.timer = nil
	ctx := t.ctx
	t.mu.Unlock()
	if eff := t.step(Input{Kind: InputRetry}); eff.Kind == EffectDial {
		_ = t.dial(ctx)
	}
}

func (t *Transport) dial(ctx context.Context) error {
	token := t.token()
	if token == "" {
		t.step(Input{Kind: InputUnauthorized})
		return ErrNoToken
	}
	target := *t.url
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	conn, resp, err := t.dialer.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			t.step(Input{Kind: InputUnauthorized})
			return ErrUnauthorized
		}
		t.logger.Debug("websocket dial failed", zap.Error(err))
		t.step(Input{Kind: InputDialFailed})
		return nil
	}

	t.mu.Lock()
	if t.machine.State != StateConnecting {
		// logged out while dialing
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.conn = conn
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	t.step(Input{Kind: InputOpened})
	go t.readLoop(conn, gen)
	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn, gen int) {
	_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(t.writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.connLost(conn, gen, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))

		event, err := wire.Decode(data)
		if err != nil {
			t.logger.Warn("dropping inbound frame", zap.Error(err))
			continue
		}
		if t.State() == StateAuthenticated {
			t.step(Input{Kind: InputMessage})
		}
		t.dispatch(event)
	}
}

func (t *Transport) connLost(conn *websocket.Conn, gen int, err error) {
	_ = conn.Close()
	t.mu.Lock()
	if gen != t.gen {
		// replaced or logged out
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.mu.Unlock()

	code := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}
	t.logger.Debug("websocket closed", zap.Int("code", code), zap.Error(err))
	t.step(Input{Kind: InputClosed, Code: code})
}

func (t *Transport) dispatch(event wire.Event) {
	t.mu.Lock()
	subs := append([]subscriber(nil), t.subs...)
	t.mu.Unlock()
	for _, s := range subs {
		t.deliver(s, event)
	}
}

func (t *Transport) deliver(s subscriber, event wire.Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event handler panicked",
				zap.String("kind", string(event.Kind())),
				zap.Any("panic", r),
			)
		}
	}()
	s.handlers.Dispatch(event)
}
