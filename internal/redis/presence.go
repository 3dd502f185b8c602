package redis

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

const (
	writeTimeout   = 2 * time.Second
	resyncInterval = 5 * time.Second
)

// PresenceStore is the subset of Store the mirror writes through.
type PresenceStore interface {
	AddPeer(ctx context.Context, roomID, participantID string) error
	RemovePeer(ctx context.Context, roomID, participantID string) error
	ReplacePeers(ctx context.Context, roomID string, participantIDs []string) error
}

// MemberSource is the authoritative membership, normally the room registry.
type MemberSource interface {
	Members(roomID string) []models.Participant
}

// Mirror applies membership deltas to a PresenceStore in delta order, off the hub
// goroutine so a slow Redis never stalls signaling. A room whose delta was dropped
// or failed to apply is rewritten from the MemberSource on the next resync.
type Mirror struct {
	store   PresenceStore
	members MemberSource
	updates chan room.Delta

	mu    sync.Mutex
	dirty map[string]struct{}

	resyncEvery time.Duration
	log         zerolog.Logger
}

func NewMirror(store PresenceStore, members MemberSource, log zerolog.Logger) *Mirror {
	return &Mirror{
		store:       store,
		members:     members,
		updates:     make(chan room.Delta, 1024),
		dirty:       make(map[string]struct{}),
		resyncEvery: resyncInterval,
		log:         log.With().Str("component", "presence").Logger(),
	}
}

// Track is a room.Listener. It never blocks. A delta that does not fit the buffer
// marks its room for resync.
func (m *Mirror) Track(d room.Delta) {
	select {
	case m.updates <- d:
	default:
		m.log.Warn().Str("participant_id", d.Participant.ID).Msg("presence buffer full, scheduling resync")
		m.markDirty(d.Participant.RoomID)
	}
}

// Run applies tracked deltas and resyncs dirty rooms until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.resyncEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-m.updates:
			m.apply(ctx, d)
		case <-ticker.C:
			m.resync(ctx)
		}
	}
}

func (m *Mirror) apply(ctx context.Context, d room.Delta) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var err error
	switch d.Kind {
	case room.DeltaJoined:
		err = m.store.AddPeer(ctx, d.Participant.RoomID, d.Participant.ID)
	case room.DeltaLeft:
		err = m.store.RemovePeer(ctx, d.Participant.RoomID, d.Participant.ID)
	}
	if err != nil {
		m.log.Error().Err(err).Str("delta", d.Kind.String()).Str("participant_id", d.Participant.ID).Msg("presence update failed")
		m.markDirty(d.Participant.RoomID)
	}
}

// resync rewrites every dirty room from the current membership. Deltas still
// queued behind the snapshot are idempotent set operations, so the store converges.
func (m *Mirror) resync(ctx context.Context) {
	m.mu.Lock()
	rooms := m.dirty
	m.dirty = make(map[string]struct{})
	m.mu.Unlock()

	for roomID := range rooms {
		members := m.members.Members(roomID)
		ids := make([]string, len(members))
		for i, p := range members {
			ids[i] = p.ID
		}

		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := m.store.ReplacePeers(wctx, roomID, ids)
		cancel()
		if err != nil {
			m.log.Error().Err(err).Str("room_id", roomID).Msg("presence resync failed")
			m.markDirty(roomID)
			continue
		}
		m.log.Info().Str("room_id", roomID).Int("members", len(ids)).Msg("presence resynced")
	}
}

func (m *Mirror) markDirty(roomID string) {
	m.mu.Lock()
	m.dirty[roomID] = struct{}{}
	m.mu.Unlock()
}
