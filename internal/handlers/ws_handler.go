package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"immortal-nexus-api/internal/config"
	"immortal-nexus-api/internal/delivery"
	"immortal-nexus-api/internal/metrics"
	"immortal-nexus-api/internal/realtime"
	"immortal-nexus-api/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// wsClient implements realtime.Conn by wrapping a websocket connection.
// Frames are queued on send and written in order by writePump, the only
// goroutine writing data frames to conn.
type wsClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	cfg       config.WebSocketConfig
	logger    *zap.Logger
}

func newWSClient(conn *websocket.Conn, cfg config.WebSocketConfig, logger *zap.Logger) *wsClient {
	return &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *wsClient) ID() string {
	return c.id
}

// Send queues a frame without blocking.
func (c *wsClient) Send(frame []byte) error {
	select {
	case <-c.done:
		return realtime.ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return realtime.ErrConnClosed
	default:
		return realtime.ErrSendQueueFull
	}
}

// Close stops the write pump, which closes the socket. Safe to call twice.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump drains the send queue and keeps the connection alive with pings.
// On exit Send starts failing, so the router falls back to persistence, and
// the closed socket makes the read loop fail and unregister.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// 1001 so clients treat a server-side drop as retryable
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				metrics.SendFailures.WithLabelValues("write_error").Inc()
				c.logger.Debug("websocket write failed", zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.cfg.WriteWait)); err != nil {
				// ping failed; reader loop will exit on next error
				return
			}
		}
	}
}

// WebSocket upgrades the connection and registers it for real-time delivery.
// It requires JWT middleware to have set "user_id" in context.
// GET /ws?token=<jwt>
func (h *Handler) WebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authorized"})
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.String("user_id", userID), zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	client := newWSClient(conn, h.ws, h.logger)
	go client.writePump()
	h.greet(ctx, userID, client)

	h.registry.Register(userID, client)
	defer h.registry.Unregister(client)

	h.readLoop(ctx, userID, client)
}

// greet queues the connection ack and the current unread count. They are
// queued before the connection is registered so they are the first frames.
func (h *Handler) greet(ctx context.Context, userID string, client *wsClient) {
	ack, err := wire.Encode(wire.ConnectionAck{
		UserID:       userID,
		ConnectionID: client.id,
		ServerTime:   h.clock().UTC(),
	})
	if err == nil {
		err = client.Send(ack)
	}
	if err != nil {
		h.logger.Warn("failed to queue connection ack", zap.String("user_id", userID), zap.Error(err))
		return
	}

	unread, err := h.store.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.Warn("failed to load unread count", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if frame, err := wire.Encode(wire.NotificationCount{Unread: unread}); err == nil {
		_ = client.Send(frame)
	}
}

func (h *Handler) readLoop(ctx context.Context, userID string, client *wsClient) {
	conn := client.conn
	conn.SetReadLimit(h.ws.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.ws.PongWait))
	conn.SetPongHandler(func(string) error {
		h.registry.Touch(client)
		return conn.SetReadDeadline(time.Now().Add(h.ws.PongWait))
	})

	limit := rate.Inf
	if h.ws.TypingPerSecond > 0 {
		limit = rate.Limit(h.ws.TypingPerSecond)
	}
	typing := rate.NewLimiter(limit, 1+int(h.ws.TypingPerSecond))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed", zap.String("user_id", userID), zap.String("connection_id", client.id), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.ws.PongWait))
		h.registry.Touch(client)
		h.handleFrame(ctx, userID, data, typing)
	}
}

func (h *Handler) handleFrame(ctx context.Context, userID string, data []byte, typing *rate.Limiter) {
	event, err := wire.Decode(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, wire.ErrUnknownKind) {
			reason = "unknown_kind"
		}
		metrics.InboundDropped.WithLabelValues(reason).Inc()
		h.logger.Debug("dropping inbound frame", zap.String("user_id", userID), zap.Error(err))
		return
	}

	switch e := event.(type) {
	case wire.NewMessage:
		_, err := h.service.SendMessage(ctx, delivery.MessageRequest{
			SenderID:    userID,
			RecipientID: e.Message.RecipientID,
			Content:     e.Message.Content,
			ClientID:    e.Message.ClientID,
		})
		if err != nil {
			metrics.InboundDropped.WithLabelValues("rejected").Inc()
			h.logger.Info("rejected inbound message", zap.String("user_id", userID), zap.Error(err))
		}
	case wire.Typing:
		// stop signals always pass so indicators clear promptly
		if e.IsTyping && !typing.Allow() {
			metrics.InboundDropped.WithLabelValues("rate_limited").Inc()
			return
		}
		h.service.SendTyping(ctx, userID, e.RecipientID, e.IsTyping)
	default:
		metrics.InboundDropped.WithLabelValues("unsupported").Inc()
		h.logger.Debug("dropping server-only event from client", zap.String("user_id", userID), zap.String("kind", string(event.Kind())))
	}
}
