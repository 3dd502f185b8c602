package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/meshroom/internal/models"
	"github.com/mossy-p/meshroom/internal/room"
)

type memoryPresence struct {
	mu    sync.Mutex
	peers map[string]map[string]bool
	ops   []string
	fail  bool
}

func (m *memoryPresence) AddPeer(_ context.Context, roomID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "add:"+id)
	if m.fail {
		return errors.New("redis down")
	}
	if m.peers[roomID] == nil {
		m.peers[roomID] = map[string]bool{}
	}
	m.peers[roomID][id] = true
	return nil
}

func (m *memoryPresence) RemovePeer(_ context.Context, roomID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "rem:"+id)
	delete(m.peers[roomID], id)
	return nil
}

func (m *memoryPresence) ReplacePeers(_ context.Context, roomID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "replace")
	if m.fail {
		return errors.New("redis down")
	}
	m.peers[roomID] = map[string]bool{}
	for _, id := range ids {
		m.peers[roomID][id] = true
	}
	return nil
}

func (m *memoryPresence) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *memoryPresence) has(roomID string, ids ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.peers[roomID]) != len(ids) {
		return false
	}
	for _, id := range ids {
		if !m.peers[roomID][id] {
			return false
		}
	}
	return true
}

func (m *memoryPresence) snapshot() ([]string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...), len(m.peers["r"])
}

func TestMirrorFollowsRegistry(t *testing.T) {
	store := &memoryPresence{peers: map[string]map[string]bool{}}
	reg := room.NewRegistry(0)
	mirror := NewMirror(store, reg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)

	reg.Subscribe(mirror.Track)

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Join(room.Session{Participant: models.Participant{ID: id, RoomID: "r"}})
		require.NoError(t, err)
	}
	reg.Leave("b")

	require.Eventually(t, func() bool {
		ops, n := store.snapshot()
		return len(ops) == 4 && n == 2
	}, time.Second, 5*time.Millisecond)

	ops, _ := store.snapshot()
	require.Equal(t, []string{"add:a", "add:b", "add:c", "rem:b"}, ops)
}

func TestMirrorKeepsGoingAfterErrors(t *testing.T) {
	store := &memoryPresence{peers: map[string]map[string]bool{}, fail: true}
	mirror := NewMirror(store, room.NewRegistry(0), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)

	mirror.Track(room.Delta{Kind: room.DeltaJoined, Participant: models.Participant{ID: "a", RoomID: "r"}})
	mirror.Track(room.Delta{Kind: room.DeltaLeft, Participant: models.Participant{ID: "a", RoomID: "r"}})

	require.Eventually(t, func() bool {
		ops, _ := store.snapshot()
		return len(ops) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestMirrorResyncsAfterDroppedDeltas(t *testing.T) {
	store := &memoryPresence{peers: map[string]map[string]bool{}}
	reg := room.NewRegistry(0)
	mirror := NewMirror(store, reg, zerolog.Nop())
	// nothing receives until Run starts, so every delta below is dropped
	mirror.updates = make(chan room.Delta)
	mirror.resyncEvery = 10 * time.Millisecond
	reg.Subscribe(mirror.Track)

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Join(room.Session{Participant: models.Participant{ID: id, RoomID: "r"}})
		require.NoError(t, err)
	}
	reg.Leave("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)

	require.Eventually(t, func() bool {
		return store.has("r", "a", "c")
	}, time.Second, 5*time.Millisecond)
}

func TestMirrorResyncsAfterFailedWrite(t *testing.T) {
	store := &memoryPresence{peers: map[string]map[string]bool{}, fail: true}
	reg := room.NewRegistry(0)
	mirror := NewMirror(store, reg, zerolog.Nop())
	mirror.resyncEvery = 10 * time.Millisecond
	reg.Subscribe(mirror.Track)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)

	_, err := reg.Join(room.Session{Participant: models.Participant{ID: "a", RoomID: "r"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ops, _ := store.snapshot()
		return len(ops) > 0
	}, time.Second, 5*time.Millisecond)

	store.setFail(false)
	require.Eventually(t, func() bool {
		return store.has("r", "a")
	}, time.Second, 5*time.Millisecond)
}

func TestRoomPeersKey(t *testing.T) {
	require.Equal(t, "room:main-room:peers", roomPeersKey("main-room"))
}
