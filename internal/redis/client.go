package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/mossy-p/meshroom/config"
	"github.com/redis/go-redis/v9"
)

const presenceTTL = 24 * time.Hour

// Store mirrors room presence into Redis so other processes can read who is connected.
type Store struct {
	client *redis.Client
}

// Connect initializes the Redis client and checks it answers.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// AddPeer records a participant connection in the room's peer set.
func (s *Store) AddPeer(ctx context.Context, roomID, participantID string) error {
	key := roomPeersKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, participantID)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add peer %s to %s: %w", participantID, key, err)
	}
	return nil
}

// RemovePeer drops a participant connection from the room's peer set.
func (s *Store) RemovePeer(ctx context.Context, roomID, participantID string) error {
	if err := s.client.SRem(ctx, roomPeersKey(roomID), participantID).Err(); err != nil {
		return fmt.Errorf("remove peer %s: %w", participantID, err)
	}
	return nil
}

// ReplacePeers overwrites the room's peer set with participantIDs.
func (s *Store) ReplacePeers(ctx context.Context, roomID string, participantIDs []string) error {
	key := roomPeersKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(participantIDs) > 0 {
		members := make([]any, len(participantIDs))
		for i, id := range participantIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace peers of %s: %w", key, err)
	}
	return nil
}

// PeerCount returns how many connections Redis believes are in the room.
func (s *Store) PeerCount(ctx context.Context, roomID string) (int64, error) {
	n, err := s.client.SCard(ctx, roomPeersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count peers: %w", err)
	}
	return n, nil
}

func roomPeersKey(roomID string) string {
	return "room:" + roomID + ":peers"
}
