package reconcile

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *typingRecorder) record(_ string, typing bool) {
	r.mu.Lock()
	r.events = append(r.events, typing)
	r.mu.Unlock()
}

func (r *typingRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func TestTypingExpiresWithoutRefresh(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(40*time.Millisecond, rec.record)

	tracker.Observe("u-2", true)
	require.True(t, tracker.IsTyping("u-2"))
	require.Eventually(t, func() bool { return !tracker.IsTyping("u-2") }, time.Second, 5*time.Millisecond)
	require.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestTypingRefreshExtendsIndicator(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(80*time.Millisecond, rec.record)
	defer tracker.Stop()

	tracker.Observe("u-2", true)
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		tracker.Observe("u-2", true)
	}
	require.True(t, tracker.IsTyping("u-2"))
	// refreshes do not repeat the start callback
	require.Equal(t, []bool{true}, rec.snapshot())
}

func TestTypingStopClearsImmediately(t *testing.T) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(time.Minute, rec.record)

	tracker.Observe("u-2", true)
	tracker.Observe("u-2", false)
	require.False(t, tracker.IsTyping("u-2"))
	require.Equal(t, []bool{true, false}, rec.snapshot())

	// a stop for someone not typing is silent
	tracker.Observe("u-3", false)
	require.Equal(t, []bool{true, false}, rec.snapshot())
}
