package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"immortal-nexus-api/internal/auth"
	"immortal-nexus-api/internal/config"
	"immortal-nexus-api/internal/database"
	"immortal-nexus-api/internal/delivery"
	"immortal-nexus-api/internal/handlers"
	"immortal-nexus-api/internal/logging"
	"immortal-nexus-api/internal/realtime"
	"immortal-nexus-api/internal/routes"
	"immortal-nexus-api/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	shutdownTimeout     = 10 * time.Second
	maintenanceInterval = 30 * time.Second
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nexus-server",
		Short: "Immortal Nexus real-time delivery service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("jwt-secret", "", "JWT signing secret (overrides env)")
	flags.Int("token-ttl-minutes", defaults.GetInt("jwt.ttl_minutes"), "Token TTL in minutes")
	flags.Duration("ws-ping-interval", defaults.GetDuration("ws.ping_interval"), "WebSocket ping interval")
	flags.Duration("ws-idle-timeout", defaults.GetDuration("ws.idle_timeout"), "Prune connections idle for longer than this")
	flags.Int("ws-send-buffer", defaults.GetInt("ws.send_buffer"), "Per-connection outbound queue size")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "jwt.secret", "jwt-secret")
	bindFlag(cmd, "jwt.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "ws.ping_interval", "ws-ping-interval")
	bindFlag(cmd, "ws.idle_timeout", "ws-idle-timeout")
	bindFlag(cmd, "ws.send_buffer", "ws-send-buffer")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	dataStore, err := store.New(store.Config{Database: db})
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry(realtime.RegistryOptions{Logger: logger})
	router, err := realtime.NewRouter(realtime.RouterConfig{
		Registry:  registry,
		Persister: dataStore,
		Partners:  dataStore,
		Logger:    logger,
		DedupTTL:  appConfig.DedupTTL,
	})
	if err != nil {
		return err
	}

	service, err := delivery.NewService(delivery.Config{
		Store:  dataStore,
		Router: router,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:   []byte(appConfig.JWT.Secret),
		Issuer:   appConfig.JWT.Issuer,
		Audience: appConfig.JWT.Audience,
		TTL:      appConfig.JWT.TTL,
	})

	handler, err := handlers.New(handlers.Dependencies{
		Store:     dataStore,
		Service:   service,
		Registry:  registry,
		Tokens:    tokens,
		WebSocket: appConfig.WebSocket,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	engine, err := routes.SetupRoutes(routes.Dependencies{
		Handler: handler,
		Tokens:  tokens,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: engine,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go router.RunMaintenance(signalCtx, maintenanceInterval, appConfig.WebSocket.IdleTimeout)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		// hijacked WebSocket connections are not tracked by Shutdown
		for _, identity := range registry.Online() {
			for _, conn := range registry.ConnectionsFor(identity) {
				registry.Unregister(conn)
			}
		}
		router.Wait()
		return err
	case err := <-errCh:
		return err
	}
}
