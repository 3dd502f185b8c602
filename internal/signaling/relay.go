package signaling

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

var (
	ErrDroppedUnknownTarget = errors.New("target is not a member of the room")
	ErrTargetBackpressure   = errors.New("target send buffer full")
)

// Directory resolves a connection id to its joined session.
type Directory interface {
	Lookup(participantID string) (room.Session, bool)
}

// Relay routes envelopes to the connection addressed by msg.To. It never inspects
// negotiation payloads and never retries. Per-target ordering is preserved because
// each connection drains a single FIFO send queue.
type Relay struct {
	dir Directory
	log zerolog.Logger
}

func NewRelay(dir Directory, log zerolog.Logger) *Relay {
	return &Relay{dir: dir, log: log.With().Str("component", "relay").Logger()}
}

// Relay delivers msg to its target. A target that is absent or in another room
// yields ErrDroppedUnknownTarget.
func (r *Relay) Relay(msg models.SignalMessage) error {
	target, ok := r.dir.Lookup(msg.To)
	if !ok || (msg.RoomID != "" && target.RoomID != msg.RoomID) {
		r.log.Warn().
			Str("type", string(msg.Type)).
			Str("from", msg.From).
			Str("to", msg.To).
			Msg("dropping message for unknown target")
		return fmt.Errorf("relay %s to %q: %w", msg.Type, msg.To, ErrDroppedUnknownTarget)
	}

	if err := target.Conn.Send(msg); err != nil {
		r.log.Warn().Err(err).
			Str("type", string(msg.Type)).
			Str("to", msg.To).
			Msg("failed to enqueue message")
		return fmt.Errorf("relay %s to %q: %w", msg.Type, msg.To, err)
	}
	return nil
}
