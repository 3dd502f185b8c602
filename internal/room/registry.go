// Package room keeps room membership: which participant connections are in which room,
// in the order they joined.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/mossy-p/meshroom/internal/models"
)

var (
	ErrDuplicateJoin = errors.New("connection already joined a room")
	ErrRoomFull      = errors.New("room is full")
	ErrInvalidJoin   = errors.New("participant id and room id are required")
)

// Conn is the outbound half of a participant's connection.
type Conn interface {
	// Send enqueues msg for delivery and must not block.
	Send(msg models.SignalMessage) error
}

// Session is a joined participant together with its connection handle.
type Session struct {
	models.Participant
	Conn Conn
}

type DeltaKind int

const (
	DeltaJoined DeltaKind = iota
	DeltaLeft
)

func (k DeltaKind) String() string {
	if k == DeltaJoined {
		return "joined"
	}
	return "left"
}

// Delta is emitted after every successful join or leave.
type Delta struct {
	Kind        DeltaKind
	Participant models.Participant
}

type Listener func(Delta)

// Registry is the single writer of room membership.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string][]string // roomID -> participant ids in join order
	sessions map[string]*Session
	capacity int

	listeners []Listener
	now       func() time.Time
}

// NewRegistry creates a registry. capacity <= 0 means rooms are unbounded.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		rooms:    make(map[string][]string),
		sessions: make(map[string]*Session),
		capacity: capacity,
		now:      time.Now,
	}
}

// Subscribe registers l for membership deltas. Listeners run synchronously on the
// goroutine that called Join or Leave, after the registry lock is released.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Capacity returns the per-room member limit, 0 when unbounded.
func (r *Registry) Capacity() int {
	if r.capacity < 0 {
		return 0
	}
	return r.capacity
}

// Join adds s to its room and returns the member snapshot, newcomer last.
func (r *Registry) Join(s Session) ([]models.Participant, error) {
	if s.ID == "" || s.RoomID == "" {
		return nil, ErrInvalidJoin
	}

	r.mu.Lock()
	if _, exists := r.sessions[s.ID]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateJoin
	}
	ids := r.rooms[s.RoomID]
	if r.capacity > 0 && len(ids) >= r.capacity {
		r.mu.Unlock()
		return nil, ErrRoomFull
	}

	if s.JoinedAt.IsZero() {
		s.JoinedAt = r.now()
	}
	if !s.Role.Valid() {
		s.Role = models.RoleStandard
	}
	session := s
	r.sessions[s.ID] = &session
	r.rooms[s.RoomID] = append(ids, s.ID)

	snapshot := r.membersLocked(s.RoomID)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, Delta{Kind: DeltaJoined, Participant: session.Participant})
	return snapshot, nil
}

// Leave removes the participant. Unknown ids are a no-op and report false.
func (r *Registry) Leave(participantID string) (models.Participant, bool) {
	r.mu.Lock()
	s, ok := r.sessions[participantID]
	if !ok {
		r.mu.Unlock()
		return models.Participant{}, false
	}
	delete(r.sessions, participantID)

	ids := r.rooms[s.RoomID]
	for i, id := range ids {
		if id == participantID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.rooms, s.RoomID)
	} else {
		r.rooms[s.RoomID] = ids
	}
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, Delta{Kind: DeltaLeft, Participant: s.Participant})
	return s.Participant, true
}

// Members returns the room's participants in join order.
func (r *Registry) Members(roomID string) []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(roomID)
}

// Lookup finds a joined participant's session by connection id.
func (r *Registry) Lookup(participantID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[participantID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (r *Registry) membersLocked(roomID string) []models.Participant {
	ids := r.rooms[roomID]
	out := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sessions[id].Participant)
	}
	return out
}

func notify(listeners []Listener, d Delta) {
	for _, l := range listeners {
		l(d)
	}
}
