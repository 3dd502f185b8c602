// Package signaling is the coordinator: one event loop that owns joins, leaves,
// negotiation relay and admin commands for every connection.
package signaling

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/admin"
	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

var ErrHubStopped = errors.New("hub stopped")

type event interface{ isEvent() }

type joinEvent struct {
	ctx     context.Context
	session room.Session
	result  chan error
}

type leaveEvent struct {
	participantID string
}

type inboundEvent struct {
	from string
	msg  models.SignalMessage
}

func (joinEvent) isEvent()    {}
func (leaveEvent) isEvent()   {}
func (inboundEvent) isEvent() {}

// Hub processes one event at a time, to completion, in arrival order.
type Hub struct {
	registry *room.Registry
	relay    *Relay
	admin    *admin.Channel

	events chan event
	quit   chan struct{}
	done   chan struct{}

	log zerolog.Logger
}

func NewHub(registry *room.Registry, log zerolog.Logger) *Hub {
	relay := NewRelay(registry, log)
	h := &Hub{
		registry: registry,
		relay:    relay,
		admin:    admin.NewChannel(registry, relay, log),
		events:   make(chan event, 256),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      log.With().Str("component", "hub").Logger(),
	}
	registry.Subscribe(h.onDelta)
	return h
}

// Registry exposes the membership owner for read-only queries.
func (h *Hub) Registry() *room.Registry {
	return h.registry
}

// Run is the single goroutine that mutates membership.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			return
		case ev := <-h.events:
			h.process(ev)
		}
	}
}

// Stop ends Run and waits for it to return.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.done
}

// Join registers s and blocks until the hub has processed it.
func (h *Hub) Join(ctx context.Context, s room.Session) error {
	ev := joinEvent{ctx: ctx, session: s, result: make(chan error, 1)}
	if err := h.post(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.result:
		return err
	case <-ctx.Done():
		// the event may already be processed, undo it
		h.Leave(s.ID)
		return ctx.Err()
	case <-h.quit:
		return ErrHubStopped
	}
}

// Leave removes a participant. Safe to call for connections that never joined.
func (h *Hub) Leave(participantID string) {
	_ = h.post(context.Background(), leaveEvent{participantID: participantID})
}

// Dispatch hands an inbound envelope from a connection to the loop.
func (h *Hub) Dispatch(from string, msg models.SignalMessage) {
	_ = h.post(context.Background(), inboundEvent{from: from, msg: msg})
}

func (h *Hub) post(ctx context.Context, ev event) error {
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.quit:
		return ErrHubStopped
	}
}

func (h *Hub) process(ev event) {
	switch e := ev.(type) {
	case joinEvent:
		if err := e.ctx.Err(); err != nil {
			h.log.Debug().Str("participant_id", e.session.ID).Msg("skipping abandoned join")
			e.result <- err
			return
		}
		e.result <- h.handleJoin(e.session)
	case leaveEvent:
		if p, ok := h.registry.Leave(e.participantID); ok {
			h.log.Info().Str("participant_id", p.ID).Str("room_id", p.RoomID).Msg("participant left")
		}
	case inboundEvent:
		h.handleInbound(e.from, e.msg)
	}
}

func (h *Hub) handleJoin(s room.Session) error {
	members, err := h.registry.Join(s)
	if err != nil {
		return err
	}

	self := members[len(members)-1]
	msg, err := models.NewSignalMessage(models.SignalTypeCurrentUsers, s.RoomID, models.CurrentUsersPayload{
		Self:    self,
		Members: members,
	})
	if err != nil {
		return err
	}
	msg.To = s.ID
	if err := s.Conn.Send(msg); err != nil {
		h.log.Warn().Err(err).Str("participant_id", s.ID).Msg("failed to send member snapshot")
	}

	h.log.Info().
		Str("participant_id", s.ID).
		Str("identity", s.Identity).
		Str("role", string(s.Role)).
		Str("room_id", s.RoomID).
		Int("members", len(members)).
		Msg("participant joined")
	return nil
}

func (h *Hub) handleInbound(from string, msg models.SignalMessage) {
	sender, ok := h.registry.Lookup(from)
	if !ok {
		h.log.Debug().Str("from", from).Str("type", string(msg.Type)).Msg("ignoring message from non-member")
		return
	}

	// the sender never chooses its own identity or room
	msg.From = sender.ID
	msg.RoomID = sender.RoomID

	switch {
	case msg.Type.IsNegotiation():
		if msg.To == "" {
			h.reject(sender, msg, models.ErrCodeBadMessage)
			return
		}
		switch err := h.relay.Relay(msg); {
		case err == nil:
		case errors.Is(err, ErrTargetBackpressure):
			h.reject(sender, msg, models.ErrCodeTargetBackpressure)
		default:
			h.reject(sender, msg, models.ErrCodeDroppedUnknownTarget)
		}

	case msg.Type == models.SignalTypeAdminCommand:
		var cmd models.AdminCommand
		if err := msg.DecodePayload(&cmd); err != nil {
			h.reject(sender, msg, models.ErrCodeBadMessage)
			return
		}
		cmd.IssuerID = sender.ID

		switch err := h.admin.Issue(cmd); {
		case err == nil:
		case errors.Is(err, admin.ErrNotPrivileged):
			h.reject(sender, msg, models.ErrCodeNotPrivileged)
		case errors.Is(err, admin.ErrUnknownCommand):
			h.reject(sender, msg, models.ErrCodeUnknownCommand)
		default:
			h.reject(sender, msg, models.ErrCodeUnknownTarget)
		}

	default:
		h.log.Warn().Str("from", sender.ID).Str("type", string(msg.Type)).Msg("unknown message type")
		h.reject(sender, msg, models.ErrCodeBadMessage)
	}
}

// reject reports a failed delivery back to the sender. The original message type
// and target ride along so the sender can abandon the right link.
func (h *Hub) reject(sender room.Session, orig models.SignalMessage, code string) {
	payload, _ := models.NewSignalMessage(models.SignalTypeError, sender.RoomID, map[string]string{
		"type": string(orig.Type),
	})
	payload.From = orig.To
	payload.To = sender.ID
	payload.Error = code
	if err := sender.Conn.Send(payload); err != nil {
		h.log.Debug().Err(err).Str("participant_id", sender.ID).Msg("failed to report error to sender")
	}
}

// onDelta broadcasts membership changes to everyone else in the room. It runs on
// the hub goroutine because only the hub calls Join and Leave.
func (h *Hub) onDelta(d room.Delta) {
	t := models.SignalTypeParticipantJoined
	if d.Kind == room.DeltaLeft {
		t = models.SignalTypeParticipantLeft
	}

	msg, err := models.NewSignalMessage(t, d.Participant.RoomID, d.Participant)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to build membership delta")
		return
	}
	msg.From = d.Participant.ID

	for _, member := range h.registry.Members(d.Participant.RoomID) {
		if member.ID == d.Participant.ID {
			continue
		}
		s, ok := h.registry.Lookup(member.ID)
		if !ok {
			continue
		}
		out := msg
		out.To = member.ID
		if err := s.Conn.Send(out); err != nil {
			h.log.Warn().Err(err).Str("participant_id", member.ID).Msg("failed to deliver membership delta")
		}
	}
}
