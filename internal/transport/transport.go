// Package transport is the boundary between the mesh core and the real-time media
// stack. The core only issues commands through these interfaces and receives
// transport events through the registered callbacks.
package transport

import (
	"encoding/json"
	"errors"
)

var ErrNoSenderForKind = errors.New("link has no sender for media kind")

type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Track is an outgoing media track handle. pion's webrtc.TrackLocal satisfies it.
type Track interface {
	ID() string
}

// RemoteTrack describes media arriving on a link.
type RemoteTrack struct {
	Kind     Kind
	ID       string
	StreamID string
	Track    any
}

type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the link can never carry media again.
func (s ConnectionState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// Link is one direct connection to a remote participant. Callbacks may fire on any
// goroutine.
type Link interface {
	RemoteID() string

	// AttachLocalSource creates the outgoing sender for kind. track may be nil, in
	// which case the sender exists but carries nothing until ReplaceSource.
	AttachLocalSource(kind Kind, track Track) error
	// ReplaceSource swaps the track on the kind's sender without renegotiation.
	ReplaceSource(kind Kind, track Track) error

	CreateOffer() (json.RawMessage, error)
	CreateAnswer() (json.RawMessage, error)
	ApplyRemoteDescription(payload json.RawMessage) error
	AddRemoteCandidate(payload json.RawMessage) error

	OnRemoteTrack(fn func(RemoteTrack))
	OnConnectionStateChange(fn func(ConnectionState))
	OnLocalCandidate(fn func(payload json.RawMessage))

	Close() error
}

type Transport interface {
	CreateLink(remoteID string) (Link, error)
}
