package reconcile

import (
	"testing"
	"time"

	"immortal-nexus-api/internal/wire"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, offset time.Duration) wire.Message {
	return wire.Message{ID: id, SenderID: "u-2", RecipientID: "u-1", Content: id, CreatedAt: base.Add(offset)}
}

func ids(msgs []wire.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestConversationDedupAcrossPushAndPull(t *testing.T) {
	conv := NewConversation()

	// pushed while the fetch was in flight
	require.Equal(t, 1, conv.Merge(msg("m-3", 3*time.Second)))
	// the fetch returns the same message among older ones
	require.Equal(t, 2, conv.Merge(msg("m-1", time.Second), msg("m-2", 2*time.Second), msg("m-3", 3*time.Second)))
	// a duplicate push after reconnect
	require.Zero(t, conv.Merge(msg("m-2", 2*time.Second)))

	require.Equal(t, []string{"m-1", "m-2", "m-3"}, ids(conv.Messages()))
}

func TestConversationOrdersByTimestampThenID(t *testing.T) {
	conv := NewConversation()
	conv.Merge(msg("b", time.Second), msg("c", 0), msg("a", time.Second))
	require.Equal(t, []string{"c", "a", "b"}, ids(conv.Messages()))
}

func TestConversationIgnoresMessagesWithoutID(t *testing.T) {
	conv := NewConversation()
	require.Zero(t, conv.Merge(wire.Message{Content: "optimistic"}))
	require.Zero(t, conv.Len())
}

func notif(id string, offset time.Duration, read bool) wire.Notification {
	return wire.Notification{ID: id, Title: id, Read: read, CreatedAt: base.Add(offset)}
}

func TestNotificationsUnreadConvergesAfterSnapshot(t *testing.T) {
	list := NewNotifications()
	require.True(t, list.Push(notif("n-1", 0, false)))
	require.True(t, list.Push(notif("n-2", time.Second, false)))
	require.False(t, list.Push(notif("n-2", time.Second, false)))
	require.Equal(t, 2, list.Unread())

	// n-1 was read in another tab; the snapshot carries its flag, and with
	// no server count the flags are recounted
	list.Snapshot([]wire.Notification{
		notif("n-1", 0, true),
		notif("n-2", time.Second, false),
		notif("n-3", 2*time.Second, false),
	}, -1)
	require.Equal(t, 2, list.Unread())

	unread := 0
	for _, item := range list.Items() {
		if !item.Read {
			unread++
		}
	}
	require.Equal(t, unread, list.Unread())
	require.Equal(t, "n-3", list.Items()[0].ID)
}

func TestNotificationsSnapshotTakesServerCount(t *testing.T) {
	list := NewNotifications()
	list.SetUnread(12)

	// the page holds one unread item but the server counts every one
	list.Snapshot([]wire.Notification{notif("n-1", 0, false), notif("n-2", time.Second, true)}, 12)
	require.Equal(t, 12, list.Unread())
	require.Len(t, list.Items(), 2)

	list.Snapshot(nil, 0)
	require.Zero(t, list.Unread())
}

func TestNotificationsMarkReadOnlyDecrementsUnread(t *testing.T) {
	list := NewNotifications()
	list.Push(notif("n-1", 0, false))
	list.Push(notif("n-2", time.Second, true))
	require.Equal(t, 1, list.Unread())

	require.False(t, list.MarkRead("n-2"))
	require.Equal(t, 1, list.Unread())
	require.True(t, list.MarkRead("n-1"))
	require.Zero(t, list.Unread())
	require.False(t, list.MarkRead("n-1"))
	require.False(t, list.MarkRead("missing"))
	require.Zero(t, list.Unread())
}

func TestNotificationsCountOverwriteIsNeverNegative(t *testing.T) {
	list := NewNotifications()
	list.Push(notif("n-1", 0, false))
	list.SetUnread(7)
	require.Equal(t, 7, list.Unread())
	list.SetUnread(-3)
	require.Zero(t, list.Unread())
	list.MarkAllRead()
	require.Zero(t, list.Unread())
	require.True(t, list.Items()[0].Read)
}
