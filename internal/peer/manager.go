// Package peer runs the per-pair negotiation state machine of the local participant.
//
// Every exported method and every transport callback must run on one goroutine. The
// owner passes a Dispatch func that posts transport callbacks onto that goroutine.
package peer

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/transport"
)

var ErrLinkFailed = errors.New("peer link failed")

// maxOfferRetries bounds how often an offer lost to a full target queue is resent.
const maxOfferRetries = 3

// Sender is the outbound half of the signaling connection.
type Sender interface {
	Send(msg models.SignalMessage) error
}

// Attacher adds the current outgoing media to a freshly created transport link.
type Attacher interface {
	AttachLink(link transport.Link)
}

type Params struct {
	LocalID   string
	RoomID    string
	Transport transport.Transport
	Signal    Sender

	// Media is optional.
	Media Attacher

	// Dispatch runs fn on the manager's goroutine. nil runs fn inline, which is only
	// safe when the transport calls back synchronously.
	Dispatch func(fn func())

	OnRemoteTrack func(remoteID string, track transport.RemoteTrack)
	OnLinkClosed  func(remoteID string)
	OnStateChange func(info LinkInfo)

	Logger zerolog.Logger
}

type Manager struct {
	p      Params
	links  map[string]*Link
	closed map[string]struct{} // remote ids whose link reached Closed
	log    zerolog.Logger
}

func NewManager(p Params) *Manager {
	if p.Dispatch == nil {
		p.Dispatch = func(fn func()) { fn() }
	}
	return &Manager{
		p:      p,
		links:  make(map[string]*Link),
		closed: make(map[string]struct{}),
		log:    p.Logger.With().Str("local_id", p.LocalID).Logger(),
	}
}

func (m *Manager) LocalID() string { return m.p.LocalID }

// Link returns a snapshot of the link to remoteID.
func (m *Manager) Link(remoteID string) (LinkInfo, bool) {
	l, ok := m.links[remoteID]
	if !ok {
		return LinkInfo{}, false
	}
	return l.info(), true
}

// Links returns snapshots of every open link, ordered by remote id.
func (m *Manager) Links() []LinkInfo {
	out := make([]LinkInfo, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l.info())
	}
	slices.SortFunc(out, func(a, b LinkInfo) int {
		return cmp.Compare(a.RemoteID, b.RemoteID)
	})
	return out
}

// ActiveLinks returns the transport handles of links that are negotiating or
// connected, ordered by remote id.
func (m *Manager) ActiveLinks() []transport.Link {
	var out []transport.Link
	for _, info := range m.Links() {
		l := m.links[info.RemoteID]
		if l.state.Active() && l.handle != nil {
			out = append(out, l.handle)
		}
	}
	return out
}

// HandleParticipantJoined starts negotiation towards a newcomer. The member already
// in the room is always the initiator.
func (m *Manager) HandleParticipantJoined(p models.Participant) {
	if p.ID == "" || p.ID == m.p.LocalID {
		return
	}
	if _, done := m.closed[p.ID]; done {
		return
	}
	l := m.links[p.ID]
	if l == nil {
		l = m.newLink(p.ID)
	} else if l.state != StateIdle {
		m.log.Debug().Str("remote_id", p.ID).Stringer("state", l.state).Msg("ignoring join for existing link")
		return
	}

	if err := m.ensureHandle(l); err != nil {
		m.fail(l, err)
		return
	}
	m.setState(l, StateNegotiating, RoleInitiator)

	offer, err := l.handle.CreateOffer()
	if err != nil {
		m.fail(l, fmt.Errorf("create offer: %w", err))
		return
	}
	m.send(models.SignalTypeOffer, l.RemoteID, offer)
}

// HandleParticipantLeft tears down the link to a departed participant.
func (m *Manager) HandleParticipantLeft(remoteID string) {
	if l, ok := m.links[remoteID]; ok {
		m.log.Info().Str("remote_id", remoteID).Msg("remote participant left")
		m.closeLink(l)
	}
}

// HandleDeliveryFailure is called when the server could not deliver one of our
// negotiation messages to remoteID. The negotiation is abandoned, not retried.
func (m *Manager) HandleDeliveryFailure(remoteID string) {
	l, ok := m.links[remoteID]
	if !ok || l.state == StateConnected {
		return
	}
	m.log.Warn().Str("remote_id", remoteID).Msg("negotiation message undeliverable, abandoning link")
	m.closeLink(l)
}

// HandleDeliveryDelayed is called when the server dropped one of our messages
// because remoteID's queue was full. The pair stays usable. A lost offer is sent
// again while the answer is still outstanding.
func (m *Manager) HandleDeliveryDelayed(remoteID string, t models.SignalType) {
	l, ok := m.links[remoteID]
	if !ok {
		return
	}
	if t != models.SignalTypeOffer || l.state != StateNegotiating || l.role != RoleInitiator || l.remoteApplied {
		m.log.Warn().Str("remote_id", remoteID).Str("type", string(t)).Msg("signal dropped by full target queue")
		return
	}
	if l.offerRetries >= maxOfferRetries {
		m.log.Warn().Str("remote_id", remoteID).Int("retries", l.offerRetries).Msg("giving up resending offer")
		return
	}
	l.offerRetries++

	offer, err := l.handle.CreateOffer()
	if err != nil {
		m.fail(l, fmt.Errorf("create offer: %w", err))
		return
	}
	m.send(models.SignalTypeOffer, l.RemoteID, offer)
}

// HandleSignal applies an offer, answer or candidate relayed from msg.From.
func (m *Manager) HandleSignal(msg models.SignalMessage) {
	if msg.From == "" || msg.From == m.p.LocalID {
		return
	}
	if _, done := m.closed[msg.From]; done {
		m.log.Debug().Str("remote_id", msg.From).Str("type", string(msg.Type)).Msg("ignoring signal for closed link")
		return
	}

	switch msg.Type {
	case models.SignalTypeOffer:
		m.handleOffer(msg.From, msg.Payload)
	case models.SignalTypeAnswer:
		m.handleAnswer(msg.From, msg.Payload)
	case models.SignalTypeCandidate:
		m.handleCandidate(msg.From, msg.Payload)
	default:
		m.log.Debug().Str("type", string(msg.Type)).Msg("not a negotiation message")
	}
}

func (m *Manager) handleOffer(from string, payload json.RawMessage) {
	l := m.links[from]
	switch {
	case l == nil:
		l = m.newLink(from)
	case l.state == StateNegotiating && l.role == RoleInitiator:
		// Both sides offered. The smaller id keeps the initiator role.
		if m.p.LocalID < from {
			m.log.Debug().Str("remote_id", from).Msg("offer collision, keeping initiator role")
			return
		}
		m.log.Debug().Str("remote_id", from).Msg("offer collision, yielding to remote")
		m.resetHandle(l)
	case l.state.Active():
		m.renegotiate(l, payload)
		return
	}

	if err := m.ensureHandle(l); err != nil {
		m.fail(l, err)
		return
	}
	m.setState(l, StateNegotiating, RoleResponder)

	if err := m.applyRemote(l, payload); err != nil {
		m.fail(l, err)
		return
	}
	answer, err := l.handle.CreateAnswer()
	if err != nil {
		m.fail(l, fmt.Errorf("create answer: %w", err))
		return
	}
	m.send(models.SignalTypeAnswer, l.RemoteID, answer)
}

// renegotiate answers a fresh offer on a link that already has a responder or
// connected handle.
func (m *Manager) renegotiate(l *Link, payload json.RawMessage) {
	if err := m.applyRemote(l, payload); err != nil {
		m.fail(l, err)
		return
	}
	answer, err := l.handle.CreateAnswer()
	if err != nil {
		m.fail(l, fmt.Errorf("create answer: %w", err))
		return
	}
	m.send(models.SignalTypeAnswer, l.RemoteID, answer)
}

func (m *Manager) handleAnswer(from string, payload json.RawMessage) {
	l := m.links[from]
	if l == nil || l.state != StateNegotiating || l.role != RoleInitiator {
		m.log.Debug().Str("remote_id", from).Msg("ignoring unexpected answer")
		return
	}
	if err := m.applyRemote(l, payload); err != nil {
		m.fail(l, err)
		return
	}
	m.setState(l, StateConnected, l.role)
}

func (m *Manager) handleCandidate(from string, payload json.RawMessage) {
	l := m.links[from]
	if l == nil {
		l = m.newLink(from)
	}
	if l.handle == nil || !l.remoteApplied {
		l.pending.PushBack(payload)
		return
	}
	if err := l.handle.AddRemoteCandidate(payload); err != nil {
		m.log.Warn().Err(err).Str("remote_id", from).Msg("failed to add remote candidate")
	}
}

func (m *Manager) applyRemote(l *Link, payload json.RawMessage) error {
	if err := l.handle.ApplyRemoteDescription(payload); err != nil {
		return fmt.Errorf("apply remote description: %w", err)
	}
	l.remoteApplied = true
	for l.pending.Len() > 0 {
		c := l.pending.PopFront()
		if err := l.handle.AddRemoteCandidate(c); err != nil {
			m.log.Warn().Err(err).Str("remote_id", l.RemoteID).Msg("failed to add queued candidate")
		}
	}
	return nil
}

func (m *Manager) newLink(remoteID string) *Link {
	l := &Link{RemoteID: remoteID}
	m.links[remoteID] = l
	return l
}

// ensureHandle creates the transport link on first use and wires its callbacks.
func (m *Manager) ensureHandle(l *Link) error {
	if l.handle != nil {
		return nil
	}
	h, err := m.p.Transport.CreateLink(l.RemoteID)
	if err != nil {
		return fmt.Errorf("create link to %s: %w", l.RemoteID, err)
	}
	l.handle = h
	remoteID := l.RemoteID

	h.OnConnectionStateChange(func(s transport.ConnectionState) {
		m.p.Dispatch(func() { m.handleTransportState(remoteID, h, s) })
	})
	h.OnLocalCandidate(func(payload json.RawMessage) {
		m.p.Dispatch(func() {
			if cur, ok := m.links[remoteID]; ok && cur.handle == h {
				m.send(models.SignalTypeCandidate, remoteID, payload)
			}
		})
	})
	h.OnRemoteTrack(func(t transport.RemoteTrack) {
		m.p.Dispatch(func() {
			if cur, ok := m.links[remoteID]; ok && cur.handle == h && m.p.OnRemoteTrack != nil {
				m.p.OnRemoteTrack(remoteID, t)
			}
		})
	})

	if m.p.Media != nil {
		m.p.Media.AttachLink(h)
	}
	return nil
}

// resetHandle discards the current transport link so a new one can answer.
func (m *Manager) resetHandle(l *Link) {
	if l.handle != nil {
		if err := l.handle.Close(); err != nil {
			m.log.Debug().Err(err).Str("remote_id", l.RemoteID).Msg("failed to close abandoned link")
		}
	}
	l.handle = nil
	l.remoteApplied = false
}

func (m *Manager) handleTransportState(remoteID string, h transport.Link, s transport.ConnectionState) {
	l, ok := m.links[remoteID]
	if !ok || l.handle != h {
		return
	}
	switch s {
	case transport.StateConnected:
		if l.state == StateNegotiating {
			m.setState(l, StateConnected, l.role)
		}
	case transport.StateFailed:
		m.fail(l, ErrLinkFailed)
	case transport.StateClosed:
		m.closeLink(l)
	}
}

func (m *Manager) fail(l *Link, err error) {
	m.log.Error().Err(err).Str("remote_id", l.RemoteID).Stringer("role", l.role).Msg("peer link failed")
	m.setState(l, StateFailed, l.role)
	m.closeLink(l)
}

func (m *Manager) closeLink(l *Link) {
	if l.handle != nil {
		if err := l.handle.Close(); err != nil {
			m.log.Debug().Err(err).Str("remote_id", l.RemoteID).Msg("failed to close link")
		}
		l.handle = nil
	}
	l.pending.Clear()
	m.setState(l, StateClosed, l.role)
	delete(m.links, l.RemoteID)
	m.closed[l.RemoteID] = struct{}{}
	if m.p.OnLinkClosed != nil {
		m.p.OnLinkClosed(l.RemoteID)
	}
}

func (m *Manager) setState(l *Link, s State, r Role) {
	if l.state == s && l.role == r {
		return
	}
	m.log.Debug().Str("remote_id", l.RemoteID).Stringer("from", l.state).Stringer("to", s).Stringer("role", r).Msg("link state")
	l.state = s
	l.role = r
	if m.p.OnStateChange != nil {
		m.p.OnStateChange(l.info())
	}
}

func (m *Manager) send(t models.SignalType, to string, payload json.RawMessage) {
	msg := models.SignalMessage{Type: t, To: to, RoomID: m.p.RoomID, Payload: payload}
	if err := m.p.Signal.Send(msg); err != nil {
		m.log.Warn().Err(err).Str("remote_id", to).Str("type", string(t)).Msg("failed to send signal")
	}
}

// Close tears down every link.
func (m *Manager) Close() {
	for _, id := range slices.Sorted(maps.Keys(m.links)) {
		m.closeLink(m.links[id])
	}
}
