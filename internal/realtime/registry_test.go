package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrySupportsMultipleTabs(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	tab1, tab2 := newFakeConn("c-1"), newFakeConn("c-2")

	require.True(t, r.Register("alice", tab1))
	require.False(t, r.Register("alice", tab2))
	require.Len(t, r.ConnectionsFor("alice"), 2)
	require.True(t, r.IsOnline("alice"))
	require.Equal(t, []string{"alice"}, r.Online())

	identity, last := r.Unregister(tab1)
	require.Equal(t, "alice", identity)
	require.False(t, last)
	require.True(t, tab1.isClosed())
	require.True(t, r.IsOnline("alice"))

	identity, last = r.Unregister(tab2)
	require.Equal(t, "alice", identity)
	require.True(t, last)
	require.False(t, r.IsOnline("alice"))
	require.Empty(t, r.ConnectionsFor("alice"))
	require.Zero(t, r.Count())
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	conn := newFakeConn("c-1")
	r.Register("alice", conn)

	_, last := r.Unregister(conn)
	require.True(t, last)
	identity, last := r.Unregister(conn)
	require.Empty(t, identity)
	require.False(t, last)
}

func TestRegistryPresenceHook(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	type change struct {
		identity string
		online   bool
	}
	var (
		mu      sync.Mutex
		changes []change
	)
	r.SetPresenceHook(func(identity string, online bool, _ time.Time) {
		mu.Lock()
		changes = append(changes, change{identity, online})
		mu.Unlock()
	})

	tab1, tab2 := newFakeConn("c-1"), newFakeConn("c-2")
	r.Register("alice", tab1)
	r.Register("alice", tab2)
	r.Unregister(tab1)
	r.Unregister(tab2)

	require.Equal(t, []change{{"alice", true}, {"alice", false}}, changes)
}

func TestRegistryPruneIdle(t *testing.T) {
	now := time.Now()
	r := NewRegistry(RegistryOptions{Clock: func() time.Time { return now }})
	stale, fresh := newFakeConn("c-stale"), newFakeConn("c-fresh")
	r.Register("alice", stale)
	r.Register("bob", fresh)

	now = now.Add(90 * time.Second)
	r.Touch(fresh)
	now = now.Add(30 * time.Second)

	require.Equal(t, 1, r.PruneIdle(time.Minute))
	require.True(t, stale.isClosed())
	require.False(t, r.IsOnline("alice"))
	require.True(t, r.IsOnline("bob"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c-%d", i))
			r.Register("alice", conn)
			_ = r.ConnectionsFor("alice")
			r.Unregister(conn)
		}(i)
	}
	wg.Wait()
	require.Zero(t, r.Count())
	require.False(t, r.IsOnline("alice"))
}
