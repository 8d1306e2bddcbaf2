package feed

import (
	"fmt"
	"time"
)

// State is the connection state of the live feed.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Websocket close codes (RFC 6455).
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// closeReason is sent with the normal-closure frame on teardown.
const closeReason = "component unmounting"

// EventKind identifies an input to the state machine.
type EventKind int

const (
	EventOpen     EventKind = iota // open attempt requested
	EventOpened                    // socket handshake completed
	EventMessage                   // inbound frame
	EventClosed                    // socket closed with Code
	EventError                     // socket failed with Err
	EventTimer                     // reconnect timer fired
	EventTeardown                  // owner released the feed
)

// Event is a single input to Machine.Step.
type Event struct {
	Kind EventKind
	Code int
	Err  error
}

// EffectKind identifies a side effect requested by the state machine.
type EffectKind int

const (
	EffectOpenSocket EffectKind = iota
	EffectCloseSocket
	EffectScheduleRetry
	EffectCancelRetry
	EffectEnqueue
)

// Effect is a side effect the dispatcher must perform after a transition.
type Effect struct {
	Kind  EffectKind
	Delay time.Duration // EffectScheduleRetry only
}

// Status is the observable connection status.
type Status struct {
	State State
	// Err is the user-visible error line. Cleared on entering Connected.
	Err string
	// Failed marks a Disconnected state entered through a socket error;
	// an abnormal close that follows still takes the retry path.
	Failed bool
	// Attempt counts reconnect attempts since the last Connected.
	Attempt int
}

// Error messages surfaced to the rendering layer.
const (
	errSocketFailed = "Failed to connect to WebSocket server."
)

// Machine is the pure connection state machine.
type Machine struct {
	Policy Policy
}

func (m Machine) policy() Policy {
	if m.Policy == nil {
		return DefaultPolicy()
	}
	return m.Policy
}

// Step computes the next status and the effects to run for ev.
// Events that do not apply to the current state leave it unchanged.
func (m Machine) Step(s Status, ev Event) (Status, []Effect) {
	switch ev.Kind {
	case EventOpen:
		if s.State != Disconnected && s.State != Reconnecting {
			return s, nil
		}
		s.State = Connecting
		return s, []Effect{{Kind: EffectCancelRetry}, {Kind: EffectOpenSocket}}

	case EventTimer:
		if s.State != Reconnecting {
			return s, nil
		}
		s.State = Connecting
		return s, []Effect{{Kind: EffectOpenSocket}}

	case EventOpened:
		if s.State != Connecting {
			return s, nil
		}
		return Status{State: Connected}, nil

	case EventMessage:
		if s.State != Connected {
			return s, nil
		}
		return s, []Effect{{Kind: EffectEnqueue}}

	case EventClosed:
		live := s.State == Connecting || s.State == Connected
		if !live && !(s.State == Disconnected && s.Failed) {
			return s, nil
		}
		if ev.Code == CloseNormal {
			s.State = Disconnected
			s.Failed = false
			return s, nil
		}
		delay, ok := m.policy().Next(s.Attempt)
		if !ok {
			return Status{
				State:   Disconnected,
				Failed:  true,
				Attempt: s.Attempt,
				Err:     fmt.Sprintf("Disconnected from server. Gave up after %d attempts.", s.Attempt),
			}, nil
		}
		return Status{
			State:   Reconnecting,
			Attempt: s.Attempt + 1,
			Err:     fmt.Sprintf("Disconnected from server. Retrying in %s...", humanDelay(delay)),
		}, []Effect{{Kind: EffectScheduleRetry, Delay: delay}}

	case EventError:
		if s.State != Connecting && s.State != Connected {
			return s, nil
		}
		s.State = Disconnected
		s.Failed = true
		s.Err = errSocketFailed
		return s, nil

	case EventTeardown:
		return Status{State: Disconnected}, []Effect{{Kind: EffectCancelRetry}, {Kind: EffectCloseSocket}}
	}
	return s, nil
}

func humanDelay(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		n := int(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	return d.String()
}
