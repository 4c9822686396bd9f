package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "NEXUS"
	defaultHTTPAddress     = "0.0.0.0:8008"
	defaultDatabasePath    = "immortal-nexus.db"
	defaultLogLevel        = "info"
	defaultJWTIssuer       = "immortal-nexus-api"
	defaultJWTAudience     = "immortal-nexus-clients"
	defaultTokenTTLMinutes = 24 * 60
	defaultPingInterval    = 30 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 5 * time.Second
	defaultMaxMessageBytes = 8 * 1024
	defaultIdleTimeout     = 2 * time.Minute
	defaultSendBuffer      = 64
	defaultTypingPerSecond = 5
	defaultDedupTTL        = 5 * time.Minute
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string
	JWT          JWTConfig
	WebSocket    WebSocketConfig
	DedupTTL     time.Duration
}

// JWTConfig holds token signing parameters.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// WebSocketConfig holds per-connection transport limits.
type WebSocketConfig struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	IdleTimeout     time.Duration
	SendBuffer      int
	TypingPerSecond float64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("jwt.issuer", defaultJWTIssuer)
	configViper.SetDefault("jwt.audience", defaultJWTAudience)
	configViper.SetDefault("jwt.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("ws.ping_interval", defaultPingInterval)
	configViper.SetDefault("ws.pong_wait", defaultPongWait)
	configViper.SetDefault("ws.write_wait", defaultWriteWait)
	configViper.SetDefault("ws.max_message_bytes", defaultMaxMessageBytes)
	configViper.SetDefault("ws.idle_timeout", defaultIdleTimeout)
	configViper.SetDefault("ws.send_buffer", defaultSendBuffer)
	configViper.SetDefault("ws.typing_per_second", defaultTypingPerSecond)
	configViper.SetDefault("router.dedup_ttl", defaultDedupTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		JWT: JWTConfig{
			Secret:   configViper.GetString("jwt.secret"),
			Issuer:   configViper.GetString("jwt.issuer"),
			Audience: configViper.GetString("jwt.audience"),
			TTL:      time.Duration(configViper.GetInt("jwt.ttl_minutes")) * time.Minute,
		},
		WebSocket: WebSocketConfig{
			PingInterval:    configViper.GetDuration("ws.ping_interval"),
			PongWait:        configViper.GetDuration("ws.pong_wait"),
			WriteWait:       configViper.GetDuration("ws.write_wait"),
			MaxMessageBytes: configViper.GetInt64("ws.max_message_bytes"),
			IdleTimeout:     configViper.GetDuration("ws.idle_timeout"),
			SendBuffer:      configViper.GetInt("ws.send_buffer"),
			TypingPerSecond: configViper.GetFloat64("ws.typing_per_second"),
		},
		DedupTTL: configViper.GetDuration("router.dedup_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("jwt.ttl_minutes must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		return fmt.Errorf("ws.pong_wait must exceed a positive ws.ping_interval")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	return nil
}
