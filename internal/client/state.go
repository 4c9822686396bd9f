// Package client is the browser-side half of the real-time path: a
// WebSocket transport that authenticates with a bearer token, reconnects
// with exponential backoff, and dispatches typed events to subscribers.
package client

import (
	"math"
	"time"
)

// State is the transport's connection state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateConnected     State = "connected"
	StateReconnecting  State = "reconnecting"
)

// Reason records why the machine settled in StateDisconnected for good.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonLoggedOut    Reason = "logged_out"
	ReasonNormalClose  Reason = "normal_close"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonGaveUp       Reason = "gave_up"
)

// CloseNormal is the WebSocket close code for an intentional close.
const CloseNormal = 1000

// Policy controls reconnection delays: Initial, then multiplied by Factor
// after every consecutive failure, never above Max. MaxAttempts <= 0 retries
// forever.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultPolicy is 1s doubling to 30s, giving up after 10 attempts.
func DefaultPolicy() Policy {
	return Policy{
		Initial:     time.Second,
		Max:         30 * time.Second,
		Factor:      2,
		MaxAttempts: 10,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Max < p.Initial {
		p.Max = max(d.Max, p.Initial)
	}
	if p.Factor < 1 {
		p.Factor = d.Factor
	}
	return p
}

// Delay returns the wait before retry number attempt (starting at 1).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	exp := math.Max(float64(attempt-1), 0)
	delay := float64(p.Initial) * math.Pow(p.Factor, exp)
	if delay >= float64(p.Max) {
		return p.Max
	}
	return time.Duration(delay)
}

// InputKind enumerates what can happen to a connection.
type InputKind int

const (
	// InputConnect is a caller asking to connect.
	InputConnect InputKind = iota
	// InputOpened is a successful WebSocket handshake.
	InputOpened
	// InputMessage is the first valid frame on an open socket.
	InputMessage
	// InputClosed is the socket closing with Input.Code.
	InputClosed
	// InputDialFailed is a handshake failing for a transient reason.
	InputDialFailed
	// InputUnauthorized is the server rejecting the token.
	InputUnauthorized
	// InputRetry is the reconnect timer firing.
	InputRetry
	// InputLogout is a caller closing the transport for good.
	InputLogout
)

// Input is one event fed to the machine.
type Input struct {
	Kind InputKind
	Code int
}

// EffectKind is work the transport must perform after a transition.
type EffectKind int

const (
	EffectNone EffectKind = iota
	// EffectDial opens a new socket.
	EffectDial
	// EffectScheduleRetry arms the reconnect timer for Effect.Delay.
	EffectScheduleRetry
	// EffectClose cancels any timer and closes the socket with CloseNormal.
	EffectClose
)

// Effect is the side effect requested by a transition.
type Effect struct {
	Kind  EffectKind
	Delay time.Duration
}

// Machine is the reconnection state. It holds no IO; Next is a pure function.
type Machine struct {
	State State
	// Attempt counts consecutive failed connection attempts.
	Attempt int
	// Delay is the wait before the pending retry, zero once connected.
	Delay  time.Duration
	Reason Reason
	Policy Policy
}

// NewMachine returns a disconnected machine.
func NewMachine(policy Policy) Machine {
	return Machine{State: StateDisconnected, Policy: policy.normalized()}
}

// Next applies in and returns the new machine with the effect to perform.
func (m Machine) Next(in Input) (Machine, Effect) {
	if in.Kind == InputLogout {
		m.State = StateDisconnected
		m.Reason = ReasonLoggedOut
		m.Delay = 0
		return m, Effect{Kind: EffectClose}
	}

	switch m.State {
	case StateDisconnected:
		if in.Kind == InputConnect {
			m.State = StateConnecting
			m.Attempt = 0
			m.Delay = 0
			m.Reason = ReasonNone
			return m, Effect{Kind: EffectDial}
		}

	case StateConnecting:
		switch in.Kind {
		case InputOpened:
			m.State = StateAuthenticated
			return m, Effect{}
		case InputUnauthorized:
			m.State = StateDisconnected
			m.Reason = ReasonUnauthorized
			return m, Effect{}
		case InputDialFailed, InputClosed:
			return m.scheduleRetry()
		}

	case StateAuthenticated, StateConnected:
		switch in.Kind {
		case InputMessage:
			if m.State == StateAuthenticated {
				m.State = StateConnected
				m.Attempt = 0
				m.Delay = 0
			}
			return m, Effect{}
		case InputClosed:
			if in.Code == CloseNormal {
				m.State = StateDisconnected
				m.Reason = ReasonNormalClose
				return m, Effect{}
			}
			return m.scheduleRetry()
		}

	case StateReconnecting:
		if in.Kind == InputRetry {
			m.State = StateConnecting
			return m, Effect{Kind: EffectDial}
		}
	}
	return m, Effect{}
}

func (m Machine) scheduleRetry() (Machine, Effect) {
	if m.Policy.MaxAttempts > 0 && m.Attempt >= m.Policy.MaxAttempts {
		m.State = StateDisconnected
		m.Reason = ReasonGaveUp
		m.Delay = 0
		return m, Effect{}
	}
	m.Attempt++
	m.Delay = m.Policy.Delay(m.Attempt)
	m.State = StateReconnecting
	return m, Effect{Kind: EffectScheduleRetry, Delay: m.Delay}
}
