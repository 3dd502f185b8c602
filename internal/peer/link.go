package peer

import (
	"encoding/json"

	"github.com/gammazero/deque"

	"github.com/mossy-p/meshroom/internal/transport"
)

// State of one pairwise link as seen from the local participant.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Active reports whether the link has a transport handle worth sending media to.
func (s State) Active() bool {
	return s == StateNegotiating || s == StateConnected
}

type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "none"
	}
}

// Link is the manager's record for one remote participant.
type Link struct {
	RemoteID string

	state  State
	role   Role
	handle transport.Link

	// candidates received before the remote description was applied
	pending       deque.Deque[json.RawMessage]
	remoteApplied bool

	offerRetries int
}

func (l *Link) State() State { return l.state }

func (l *Link) Role() Role { return l.role }

func (l *Link) Pending() int { return l.pending.Len() }

// LinkInfo is a read-only snapshot of a Link.
type LinkInfo struct {
	RemoteID string
	State    State
	Role     Role
	Pending  int
}

func (l *Link) info() LinkInfo {
	return LinkInfo{RemoteID: l.RemoteID, State: l.state, Role: l.role, Pending: l.pending.Len()}
}
