// Package admin validates and forwards control commands from the privileged participant.
package admin

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

var (
	ErrNotPrivileged  = errors.New("issuer is not privileged")
	ErrUnknownTarget  = errors.New("unknown admin command target")
	ErrUnknownCommand = errors.New("unknown admin command")
)

type Directory interface {
	Lookup(participantID string) (room.Session, bool)
}

// Deliverer is the addressed-delivery path shared with negotiation messages.
type Deliverer interface {
	Relay(msg models.SignalMessage) error
}

type Channel struct {
	dir   Directory
	relay Deliverer
	log   zerolog.Logger
}

func NewChannel(dir Directory, relay Deliverer, log zerolog.Logger) *Channel {
	return &Channel{dir: dir, relay: relay, log: log.With().Str("component", "admin").Logger()}
}

// Issue forwards cmd to its target at most once. Nothing is queued or retried.
func (c *Channel) Issue(cmd models.AdminCommand) error {
	issuer, ok := c.dir.Lookup(cmd.IssuerID)
	if !ok || !issuer.IsPrivileged() {
		c.log.Warn().Str("issuer", cmd.IssuerID).Str("kind", string(cmd.Kind)).Msg("rejected admin command from non-privileged issuer")
		return ErrNotPrivileged
	}
	if !cmd.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}

	target, ok := c.dir.Lookup(cmd.TargetID)
	if !ok || target.RoomID != issuer.RoomID {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, cmd.TargetID)
	}

	msg, err := models.NewSignalMessage(models.SignalTypeReceiveAdminCommand, issuer.RoomID, cmd)
	if err != nil {
		return err
	}
	msg.From = issuer.ID
	msg.To = target.ID

	if err := c.relay.Relay(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownTarget, err)
	}

	c.log.Info().
		Str("issuer", issuer.ID).
		Str("target", target.ID).
		Str("kind", string(cmd.Kind)).
		Msg("admin command forwarded")
	return nil
}
