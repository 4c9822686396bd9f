// Package reconcile merges pushed real-time events with REST-fetched history
// into one consistent client-side view.
package reconcile

import (
	"cmp"
	"slices"

	"immortal-nexus-api/internal/wire"
)

// Conversation is the ordered, duplicate-free message list for one partner.
type Conversation struct {
	ids      map[string]struct{}
	messages []wire.Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{ids: make(map[string]struct{})}
}

// Merge adds messages not seen before and keeps the list ordered by server
// timestamp, ties by id. It returns how many were added.
func (c *Conversation) Merge(msgs ...wire.Message) int {
	added := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, dup := c.ids[m.ID]; dup {
			continue
		}
		c.ids[m.ID] = struct{}{}
		c.messages = append(c.messages, m)
		added++
	}
	if added > 0 {
		slices.SortStableFunc(c.messages, compareMessages)
	}
	return added
}

// MarkRead flags every message from sender as read.
func (c *Conversation) MarkRead(sender string) {
	for i := range c.messages {
		if c.messages[i].SenderID == sender {
			c.messages[i].Read = true
		}
	}
}

// Messages returns a copy of the ordered list.
func (c *Conversation) Messages() []wire.Message {
	return slices.Clone(c.messages)
}

// Len returns the number of messages held.
func (c *Conversation) Len() int {
	return len(c.messages)
}

func compareMessages(a, b wire.Message) int {
	if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
		return n
	}
	return cmp.Compare(a.ID, b.ID)
}

// Notifications is the most-recent-first notification list with its unread
// count.
type Notifications struct {
	byID   map[string]int
	items  []wire.Notification
	unread int
}

// NewNotifications returns an empty list.
func NewNotifications() *Notifications {
	return &Notifications{byID: make(map[string]int)}
}

// Push adds a pushed notification. A new unread item increments the count
// optimistically. Duplicates are ignored.
func (n *Notifications) Push(item wire.Notification) bool {
	if item.ID == "" {
		return false
	}
	if _, dup := n.byID[item.ID]; dup {
		return false
	}
	n.items = append(n.items, item)
	n.sort()
	if !item.Read {
		n.unread++
	}
	return true
}

// Snapshot merges an authoritative REST snapshot. Server read flags win.
// unread is the server's count over every notification, not just this page;
// a negative unread recounts from the flags of the held items instead.
func (n *Notifications) Snapshot(items []wire.Notification, unread int) {
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if i, ok := n.byID[item.ID]; ok {
			n.items[i] = item
			continue
		}
		n.byID[item.ID] = len(n.items)
		n.items = append(n.items, item)
	}
	n.sort()
	if unread >= 0 {
		n.unread = unread
		return
	}
	n.unread = 0
	for _, item := range n.items {
		if !item.Read {
			n.unread++
		}
	}
}

// SetUnread overwrites the count with the server's figure.
func (n *Notifications) SetUnread(count int) {
	n.unread = max(count, 0)
}

// MarkRead marks one item read. The count drops only if it was unread.
func (n *Notifications) MarkRead(id string) bool {
	i, ok := n.byID[id]
	if !ok || n.items[i].Read {
		return false
	}
	n.items[i].Read = true
	if n.unread > 0 {
		n.unread--
	}
	return true
}

// MarkAllRead marks every item read.
func (n *Notifications) MarkAllRead() {
	for i := range n.items {
		n.items[i].Read = true
	}
	n.unread = 0
}

// Items returns a copy of the list, newest first.
func (n *Notifications) Items() []wire.Notification {
	return slices.Clone(n.items)
}

// Unread returns the unread count. It is never negative.
func (n *Notifications) Unread() int {
	return n.unread
}

func (n *Notifications) sort() {
	slices.SortStableFunc(n.items, func(a, b wire.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	for i, item := range n.items {
		n.byID[item.ID] = i
	}
}
