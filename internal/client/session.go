package client

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/media"
	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/peer"
	"github.com/mossy-p/meshroom/internal/transport"
)

var (
	ErrJoinRejected  = errors.New("join rejected")
	ErrDisconnected  = errors.New("disconnected from coordinator")
	ErrSessionClosed = errors.New("session closed")
)

const eventBufferSize = 64

// Hooks observe the session. They run on the session goroutine and must not block.
type Hooks struct {
	OnJoined       func(self models.Participant, members []models.Participant)
	OnMemberJoined func(p models.Participant)
	OnMemberLeft   func(p models.Participant)
	OnLinkState    func(info peer.LinkInfo)
	OnLinkClosed   func(remoteID string)
	OnRemoteTrack  func(remoteID string, track transport.RemoteTrack)
	OnAdminCommand func(cmd models.AdminCommand)
	OnError        func(msg models.SignalMessage)
}

// Session owns one participant's membership. Server messages, transport callbacks
// and local commands are all serialized through Run.
type Session struct {
	conn      *Conn
	transport transport.Transport
	media     *media.Controller
	hooks     Hooks

	self    models.Participant
	members []models.Participant
	peers   *peer.Manager

	events chan func()
	quit   chan struct{}

	log zerolog.Logger
}

// NewSession wires a connected signaling socket to a transport. ctrl may be nil.
func NewSession(conn *Conn, tr transport.Transport, ctrl *media.Controller, hooks Hooks, log zerolog.Logger) *Session {
	if ctrl == nil {
		ctrl = media.NewController(nil, nil, log)
	}
	return &Session{
		conn:      conn,
		transport: tr,
		media:     ctrl,
		hooks:     hooks,
		events:    make(chan func(), eventBufferSize),
		quit:      make(chan struct{}),
		log:       log,
	}
}

// Run processes events until ctx is done or the coordinator goes away. All links
// and sources are released on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown()

	incoming := s.conn.Incoming()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.events:
			fn()
		case msg, ok := <-incoming:
			if !ok {
				return ErrDisconnected
			}
			if err := s.handle(msg); err != nil {
				return err
			}
		}
	}
}

// Post runs fn on the session goroutine. It reports false once the session ended.
func (s *Session) Post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// Do runs fn on the session goroutine and waits for its result.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !s.Post(func() { result <- fn() }) {
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrSessionClosed
	}
}

// Media is the local source controller. Only touch it from inside Post or Do.
func (s *Session) Media() *media.Controller {
	return s.media
}

// Self is the local participant. Only valid inside Post or Do.
func (s *Session) Self() models.Participant {
	return s.self
}

// Members lists the room in join order. Only valid inside Post or Do.
func (s *Session) Members() []models.Participant {
	return slices.Clone(s.members)
}

// Links returns link snapshots. Only valid inside Post or Do.
func (s *Session) Links() []peer.LinkInfo {
	if s.peers == nil {
		return nil
	}
	return s.peers.Links()
}

// SendAdminCommand asks the coordinator to forward kind to target.
func (s *Session) SendAdminCommand(kind models.AdminCommandKind, targetID string) error {
	msg, err := models.NewSignalMessage(models.SignalTypeAdminCommand, "", models.AdminCommand{Kind: kind, TargetID: targetID})
	if err != nil {
		return err
	}
	return s.conn.Send(msg)
}

func (s *Session) handle(msg models.SignalMessage) error {
	switch msg.Type {
	case models.SignalTypeCurrentUsers:
		return s.handleSnapshot(msg)

	case models.SignalTypeParticipantJoined:
		var p models.Participant
		if err := msg.DecodePayload(&p); err != nil {
			s.log.Warn().Err(err).Msg("bad participant-joined")
			return nil
		}
		s.members = append(s.members, p)
		if s.hooks.OnMemberJoined != nil {
			s.hooks.OnMemberJoined(p)
		}
		if s.peers != nil {
			s.peers.HandleParticipantJoined(p)
		}

	case models.SignalTypeParticipantLeft:
		var p models.Participant
		if err := msg.DecodePayload(&p); err != nil {
			p = models.Participant{ID: msg.From}
		}
		s.members = slices.DeleteFunc(s.members, func(m models.Participant) bool { return m.ID == p.ID })
		if s.hooks.OnMemberLeft != nil {
			s.hooks.OnMemberLeft(p)
		}
		if s.peers != nil {
			s.peers.HandleParticipantLeft(p.ID)
		}

	case models.SignalTypeOffer, models.SignalTypeAnswer, models.SignalTypeCandidate:
		if s.peers == nil {
			s.log.Debug().Str("type", string(msg.Type)).Msg("negotiation before snapshot, ignoring")
			return nil
		}
		s.peers.HandleSignal(msg)

	case models.SignalTypeReceiveAdminCommand:
		var cmd models.AdminCommand
		if err := msg.DecodePayload(&cmd); err != nil {
			s.log.Warn().Err(err).Msg("bad admin command")
			return nil
		}
		if cmd.IssuerID == "" {
			cmd.IssuerID = msg.From
		}
		if err := s.media.ApplyAdminCommand(cmd); err != nil {
			s.log.Warn().Err(err).Msg("admin command not applied")
			return nil
		}
		if s.hooks.OnAdminCommand != nil {
			s.hooks.OnAdminCommand(cmd)
		}

	case models.SignalTypeError:
		if s.peers == nil {
			return fmt.Errorf("%w: %s", ErrJoinRejected, msg.Error)
		}
		s.log.Warn().Str("code", msg.Error).Str("remote_id", msg.From).Msg("coordinator reported error")
		if msg.From != "" {
			switch msg.Error {
			case models.ErrCodeDroppedUnknownTarget:
				s.peers.HandleDeliveryFailure(msg.From)
			case models.ErrCodeTargetBackpressure:
				var orig struct {
					Type models.SignalType `json:"type"`
				}
				if err := msg.DecodePayload(&orig); err != nil {
					s.log.Debug().Err(err).Msg("error payload without original type")
				}
				s.peers.HandleDeliveryDelayed(msg.From, orig.Type)
			}
		}
		if s.hooks.OnError != nil {
			s.hooks.OnError(msg)
		}

	default:
		s.log.Debug().Str("type", string(msg.Type)).Msg("unhandled message type")
	}
	return nil
}

// handleSnapshot records our identity and the existing members. The newcomer never
// initiates, so no links are opened here.
func (s *Session) handleSnapshot(msg models.SignalMessage) error {
	var snap models.CurrentUsersPayload
	if err := msg.DecodePayload(&snap); err != nil {
		return fmt.Errorf("bad room snapshot: %w", err)
	}
	if s.peers != nil {
		s.log.Warn().Msg("duplicate room snapshot ignored")
		return nil
	}

	s.self = snap.Self
	s.members = snap.Members
	s.log = s.log.With().Str("participant_id", s.self.ID).Logger()

	s.peers = peer.NewManager(peer.Params{
		LocalID:       s.self.ID,
		RoomID:        msg.RoomID,
		Transport:     s.transport,
		Signal:        s.conn,
		Media:         s.media,
		Dispatch:      func(fn func()) { s.Post(fn) },
		OnRemoteTrack: s.hooks.OnRemoteTrack,
		OnLinkClosed:  s.hooks.OnLinkClosed,
		OnStateChange: s.hooks.OnLinkState,
		Logger:        s.log,
	})
	s.media.SetLinks(s.peers)

	s.log.Info().Int("members", len(snap.Members)).Str("role", string(s.self.Role)).Msg("joined room")
	if s.hooks.OnJoined != nil {
		s.hooks.OnJoined(s.self, slices.Clone(s.members))
	}
	return nil
}

func (s *Session) shutdown() {
	close(s.quit)
	if s.peers != nil {
		s.peers.Close()
	}
	s.media.Close()
	s.conn.Close()
}
