package session

import "fmt"

// Phase is the coarse lifecycle position of the session.
type Phase int

const (
	Disconnected Phase = iota
	Authenticating
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the session state. Credential is the latest scannable pairing code
// while Authenticating; Reason is set for Failed and after a disconnect.
type State struct {
	Phase      Phase
	Credential string
	Reason     string
}

func (s State) String() string { return s.Phase.String() }

// EventKind enumerates what a channel reports.
type EventKind int

const (
	// EventInitialize is emitted by the session itself when Initialize is called.
	EventInitialize EventKind = iota
	EventQR
	EventAuthenticated
	EventReady
	EventAuthFailure
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventInitialize:
		return "initialize"
	case EventQR:
		return "qr"
	case EventAuthenticated:
		return "authenticated"
	case EventReady:
		return "ready"
	case EventAuthFailure:
		return "auth_failure"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a channel notification. Code carries the QR payload, Reason a
// human-readable cause for auth_failure / disconnected.
type Event struct {
	Kind   EventKind
	Code   string
	Reason string
}

func QR(code string) Event                  { return Event{Kind: EventQR, Code: code} }
func Authenticated() Event                  { return Event{Kind: EventAuthenticated} }
func ReadyEvent() Event                     { return Event{Kind: EventReady} }
func AuthFailure(reason string) Event       { return Event{Kind: EventAuthFailure, Reason: reason} }
func DisconnectedEvent(reason string) Event { return Event{Kind: EventDisconnected, Reason: reason} }

// Transition is the pure lifecycle table. ok is false when the event does not
// apply to the current state; the state is then returned unchanged.
func Transition(s State, e Event) (next State, ok bool) {
	switch e.Kind {
	case EventInitialize:
		if s.Phase == Disconnected {
			return State{Phase: Authenticating}, true
		}
	case EventQR:
		if s.Phase == Authenticating {
			return State{Phase: Authenticating, Credential: e.Code}, true
		}
	case EventAuthenticated:
		if s.Phase == Authenticating {
			return State{Phase: Authenticating}, true
		}
	case EventReady:
		// restored sessions may reach ready without a qr step
		if s.Phase == Authenticating || s.Phase == Disconnected {
			return State{Phase: Ready}, true
		}
	case EventAuthFailure:
		if s.Phase == Authenticating {
			return State{Phase: Failed, Reason: e.Reason}, true
		}
	case EventDisconnected:
		if s.Phase == Ready || s.Phase == Authenticating {
			return State{Phase: Disconnected, Reason: e.Reason}, true
		}
	}
	return s, false
}
