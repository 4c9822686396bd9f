package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"immortal-nexus-api/internal/auth"
	"immortal-nexus-api/internal/config"
	"immortal-nexus-api/internal/delivery"
	"immortal-nexus-api/internal/middleware"
	"immortal-nexus-api/internal/realtime"
	"immortal-nexus-api/internal/store"
	"immortal-nexus-api/internal/testutil"
	"immortal-nexus-api/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler  *Handler
	store    *store.Store
	registry *realtime.Registry
	router   *realtime.Router
	tokens   *auth.TokenManager
	engine   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	st, err := store.New(store.Config{Database: db})
	require.NoError(t, err)
	registry := realtime.NewRegistry(realtime.RegistryOptions{})
	router, err := realtime.NewRouter(realtime.RouterConfig{Registry: registry, Persister: st, Partners: st})
	require.NoError(t, err)
	svc, err := delivery.NewService(delivery.Config{Store: st, Router: router})
	require.NoError(t, err)
	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:   []byte("handler-test-secret"),
		Issuer:   "immortal-nexus-api",
		Audience: "immortal-nexus-clients",
		TTL:      time.Hour,
	})

	h, err := New(Dependencies{
		Store:    st,
		Service:  svc,
		Registry: registry,
		Tokens:   tokens,
		WebSocket: config.WebSocketConfig{
			PingInterval:    time.Second,
			PongWait:        3 * time.Second,
			WriteWait:       time.Second,
			MaxMessageBytes: 4096,
			SendBuffer:      16,
			TypingPerSecond: 50,
		},
	})
	require.NoError(t, err)

	engine := gin.New()
	authMw := middleware.JWTAuthMiddleware(tokens)
	engine.POST("/api/login", h.Login)
	engine.GET("/ws", authMw, h.WebSocket)
	api := engine.Group("/api", authMw)
	api.GET("/users", h.GetAllUsers)
	api.POST("/messages", h.SendMessage)
	api.GET("/messages/:userId", h.GetConversation)
	api.PATCH("/messages/:userId/read", h.MarkConversationRead)
	api.GET("/notifications", h.GetNotifications)
	api.POST("/notifications", h.CreateNotification)
	api.PATCH("/notifications/read-all", h.MarkAllNotificationsRead)
	api.PATCH("/notifications/:id/read", h.MarkNotificationRead)
	api.GET("/events/missed", h.GetMissedEvents)

	return &testEnv{handler: h, store: st, registry: registry, router: router, tokens: tokens, engine: engine}
}

// login registers username through the login endpoint and returns its id and token.
func (e *testEnv) login(t *testing.T, username string) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": username,
		"password": "pw-" + username,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.UserID, resp.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

type stubConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
}

func (c *stubConn) ID() string { return c.id }

func (c *stubConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *stubConn) Close() {}

func (c *stubConn) events(t *testing.T) []wire.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Event, 0, len(c.frames))
	for _, frame := range c.frames {
		evt, err := wire.Decode(frame)
		require.NoError(t, err)
		out = append(out, evt)
	}
	return out
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into))
}
