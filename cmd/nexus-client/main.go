package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"immortal-nexus-api/internal/client"
	"immortal-nexus-api/internal/logging"
	"immortal-nexus-api/internal/reconcile"
	"immortal-nexus-api/internal/wire"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	server   string
	username string
	password string
	partner  string
	logLevel string
}

func main() {
	opts := options{}
	rootCmd := &cobra.Command{
		Use:   "nexus-client",
		Short: "Terminal chat client for the Immortal Nexus delivery service",
		Long: "Logs in, keeps a WebSocket open across drops, and prints the reconciled view.\n" +
			"Every line read from stdin is sent to --partner.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&opts.server, "server", "http://localhost:8008", "Base URL of the API server")
	flags.StringVar(&opts.username, "username", "", "Account name (registered on first login)")
	flags.StringVar(&opts.password, "password", "", "Account password")
	flags.StringVar(&opts.partner, "partner", "", "User id to chat with")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	_ = rootCmd.MarkFlagRequired("username")
	_ = rootCmd.MarkFlagRequired("password")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger, err := logging.NewLogger(opts.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var token string
	tokenSource := func() string { return token }
	fetcher := reconcile.NewRESTFetcher(opts.server, tokenSource)

	login, err := fetcher.Login(ctx, opts.username, opts.password)
	if err != nil {
		return err
	}
	token = login.Token
	fmt.Printf("logged in as %s (%s)\n", login.Username, login.UserID)

	wsURL, err := websocketURL(opts.server)
	if err != nil {
		return err
	}
	transport, err := client.NewTransport(client.Options{
		URL:    wsURL,
		Token:  tokenSource,
		Policy: client.DefaultPolicy(),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	rec, err := reconcile.New(reconcile.Config{
		SelfID:  login.UserID,
		Fetcher: fetcher,
		Logger:  logger,
		Callbacks: reconcile.Callbacks{
			OnConversation: func(partnerID string, messages []wire.Message) {
				last := messages[len(messages)-1]
				fmt.Printf("[%s] %s: %s\n", partnerID, last.SenderID, last.Content)
			},
			OnNotifications: func(_ []wire.Notification, unread int) {
				fmt.Printf("notifications: %d unread\n", unread)
			},
			OnTyping: func(partnerID string, typing bool) {
				if typing {
					fmt.Printf("%s is typing...\n", partnerID)
				}
			},
			OnPresence: func(userID string, online bool) {
				fmt.Printf("%s online=%t\n", userID, online)
			},
		},
	})
	if err != nil {
		return err
	}
	defer rec.Close()
	defer rec.Attach(transport)()

	transport.OnStateChange(func(from, to client.Machine) {
		switch to.State {
		case client.StateReconnecting:
			fmt.Printf("reconnecting in %s (attempt %d)\n", to.Delay, to.Attempt)
		case client.StateDisconnected:
			fmt.Printf("disconnected: %s\n", to.Reason)
		}
	})

	// the reconciler resyncs on every connect, the first one included
	if opts.partner != "" {
		rec.SetActiveConversation(opts.partner)
	}

	if err := transport.Connect(ctx); err != nil {
		return err
	}
	defer transport.Logout()

	go readInput(ctx, transport, fetcher, opts.partner, logger)
	<-ctx.Done()
	return nil
}

// readInput sends each stdin line to partner, over the socket when it is
// up and over REST otherwise.
func readInput(ctx context.Context, transport *client.Transport, fetcher *reconcile.RESTFetcher, partner string, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || partner == "" {
			continue
		}
		clientID := uuid.NewString()
		sent := transport.Send(wire.NewMessage{Message: wire.Message{
			ClientID:    clientID,
			RecipientID: partner,
			Content:     line,
		}})
		if sent {
			continue
		}
		if _, err := fetcher.SendMessage(ctx, partner, line, clientID); err != nil {
			logger.Warn("message not sent", zap.String("recipient_id", partner), zap.Error(err))
			fmt.Println("send failed")
		}
	}
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
