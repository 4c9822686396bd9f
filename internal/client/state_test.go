package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{Initial: time.Second, Max: 8 * time.Second, Factor: 2, MaxAttempts: 6}
}

func connected(t *testing.T, p Policy) Machine {
	t.Helper()
	m := NewMachine(p)
	m, eff := m.Next(Input{Kind: InputConnect})
	require.Equal(t, EffectDial, eff.Kind)
	m, _ = m.Next(Input{Kind: InputOpened})
	require.Equal(t, StateAuthenticated, m.State)
	m, _ = m.Next(Input{Kind: InputMessage})
	require.Equal(t, StateConnected, m.State)
	return m
}

func TestPolicyDelay(t *testing.T) {
	p := testPolicy()
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 8*time.Second, p.Delay(4))
	require.Equal(t, 8*time.Second, p.Delay(9))
}

func TestBackoffIsMonotonicAndGivesUp(t *testing.T) {
	p := testPolicy()
	m := connected(t, p)

	m, eff := m.Next(Input{Kind: InputClosed, Code: 1006})
	var delays []time.Duration
	for eff.Kind == EffectScheduleRetry {
		require.Equal(t, StateReconnecting, m.State)
		delays = append(delays, eff.Delay)
		m, eff = m.Next(Input{Kind: InputRetry})
		require.Equal(t, EffectDial, eff.Kind)
		require.Equal(t, StateConnecting, m.State)
		m, eff = m.Next(Input{Kind: InputDialFailed})
	}

	require.Len(t, delays, p.MaxAttempts)
	for i := 1; i < len(delays); i++ {
		require.GreaterOrEqual(t, delays[i], delays[i-1])
		require.LessOrEqual(t, delays[i], p.Max)
	}
	require.Equal(t, p.Max, delays[len(delays)-1])
	require.Equal(t, StateDisconnected, m.State)
	require.Equal(t, ReasonGaveUp, m.Reason)

	// terminal: a stray timer does nothing
	m, eff = m.Next(Input{Kind: InputRetry})
	require.Equal(t, EffectNone, eff.Kind)
	require.Equal(t, StateDisconnected, m.State)
}

func TestBackoffResetsAfterConnecting(t *testing.T) {
	m := connected(t, testPolicy())
	m, _ = m.Next(Input{Kind: InputClosed, Code: 1006})
	m, _ = m.Next(Input{Kind: InputRetry})
	m, _ = m.Next(Input{Kind: InputDialFailed})
	require.Equal(t, 2, m.Attempt)

	m, _ = m.Next(Input{Kind: InputRetry})
	m, _ = m.Next(Input{Kind: InputOpened})
	m, _ = m.Next(Input{Kind: InputMessage})
	require.Equal(t, StateConnected, m.State)
	require.Zero(t, m.Attempt)
	require.Zero(t, m.Delay)

	_, eff := m.Next(Input{Kind: InputClosed, Code: 1001})
	require.Equal(t, time.Second, eff.Delay)
}

func TestNormalCloseIsTerminal(t *testing.T) {
	m := connected(t, testPolicy())
	m, eff := m.Next(Input{Kind: InputClosed, Code: CloseNormal})
	require.Equal(t, EffectNone, eff.Kind)
	require.Equal(t, StateDisconnected, m.State)
	require.Equal(t, ReasonNormalClose, m.Reason)
}

func TestUnauthorizedIsTerminal(t *testing.T) {
	m, _ := NewMachine(testPolicy()).Next(Input{Kind: InputConnect})
	m, eff := m.Next(Input{Kind: InputUnauthorized})
	require.Equal(t, EffectNone, eff.Kind)
	require.Equal(t, StateDisconnected, m.State)
	require.Equal(t, ReasonUnauthorized, m.Reason)
}

func TestLogoutCancelsPendingRetry(t *testing.T) {
	m := connected(t, testPolicy())
	m, eff := m.Next(Input{Kind: InputClosed, Code: 1006})
	require.Equal(t, EffectScheduleRetry, eff.Kind)

	m, eff = m.Next(Input{Kind: InputLogout})
	require.Equal(t, EffectClose, eff.Kind)
	require.Equal(t, StateDisconnected, m.State)
	require.Equal(t, ReasonLoggedOut, m.Reason)

	m, eff = m.Next(Input{Kind: InputRetry})
	require.Equal(t, EffectNone, eff.Kind)
	require.Equal(t, StateDisconnected, m.State)
}

func TestConnectAfterGivingUpStartsFresh(t *testing.T) {
	p := testPolicy()
	p.MaxAttempts = 1
	m := connected(t, p)
	m, _ = m.Next(Input{Kind: InputClosed, Code: 1006})
	m, _ = m.Next(Input{Kind: InputRetry})
	m, _ = m.Next(Input{Kind: InputDialFailed})
	require.Equal(t, ReasonGaveUp, m.Reason)

	m, eff := m.Next(Input{Kind: InputConnect})
	require.Equal(t, EffectDial, eff.Kind)
	require.Zero(t, m.Attempt)
	require.Equal(t, ReasonNone, m.Reason)
}
