package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"immortal-nexus-api/internal/auth"
	"immortal-nexus-api/internal/config"
	"immortal-nexus-api/internal/delivery"
	"immortal-nexus-api/internal/realtime"
	"immortal-nexus-api/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errMissingStore    = errors.New("store dependency required")
	errMissingService  = errors.New("delivery service dependency required")
	errMissingRegistry = errors.New("registry dependency required")
	errMissingTokens   = errors.New("token manager dependency required")
)

// Dependencies wires a Handler.
type Dependencies struct {
	Store     *store.Store
	Service   *delivery.Service
	Registry  *realtime.Registry
	Tokens    *auth.TokenManager
	WebSocket config.WebSocketConfig
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Handler serves the REST and WebSocket endpoints.
type Handler struct {
	store    *store.Store
	service  *delivery.Service
	registry *realtime.Registry
	tokens   *auth.TokenManager
	ws       config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
	clock    func() time.Time
}

// New constructs a Handler.
func New(deps Dependencies) (*Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Service == nil {
		return nil, errMissingService
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		store:    deps.Store,
		service:  deps.Service,
		registry: deps.Registry,
		tokens:   deps.Tokens,
		ws:       withWebSocketDefaults(deps.WebSocket),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS is already handled at Gin level; allow upgrade from any origin here
				return true
			},
		},
		logger: logger,
		clock:  clock,
	}, nil
}

func withWebSocketDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 8 * 1024
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return cfg
}

// currentUser returns the authenticated user id set by the JWT middleware,
// answering 401 when it is missing.
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User ID not found in token",
		})
		return "", false
	}
	return userID, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
