package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"immortal-nexus-api/internal/client"
	"immortal-nexus-api/internal/wire"

	"github.com/stretchr/testify/require"
)

func TestRESTFetcher(t *testing.T) {
	mux := http.NewServeMux()
	authorized := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/api/messages/u-2", authorized(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"m-1","senderId":"u-2","recipientId":"u-1","content":"hi","read":false,"createdAt":"2026-03-01T12:00:00Z"}],"count":1}`))
	}))
	mux.HandleFunc("/api/notifications", authorized(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notifications":[{"id":"n-1","userId":"u-1","title":"t","read":true,"createdAt":"2026-03-01T12:00:00Z"}],"unreadCount":4}`))
	}))
	mux.HandleFunc("/api/events/missed", authorized(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[{"eventId":"e-1","kind":"notificationCount","event":{"type":"notificationCount","unreadCount":3}},{"eventId":"e-2","kind":"bogus","event":{"type":"bogus"}}],"count":2}`))
	}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	f := NewRESTFetcher(srv.URL, client.StaticToken("tok"))

	msgs, err := f.Conversation(ctx, "u-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Content)

	items, unread, err := f.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].Read)
	require.Equal(t, 4, unread)

	missed, err := f.MissedEvents(ctx)
	require.NoError(t, err)
	require.Equal(t, []wire.Event{wire.NotificationCount{Unread: 3}}, missed)

	_, _, err = NewRESTFetcher(srv.URL, client.StaticToken("wrong")).Notifications(ctx)
	require.Error(t, err)
}
