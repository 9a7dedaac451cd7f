package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotStore persists one room snapshot per room id. The room overwrites
// it after every state-changing command and deletes it when the room empties.
type SnapshotStore interface {
	Save(ctx context.Context, roomID string, data []byte) error
	Load(ctx context.Context, roomID string) ([]byte, error)
	Delete(ctx context.Context, roomID string) error
}

const snapshotTTL = 2 * time.Hour

type RedisSnapshotStore struct {
	client *redis.Client
}

func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

func snapshotKey(roomID string) string {
	return "room:" + roomID
}

func (s *RedisSnapshotStore) Save(ctx context.Context, roomID string, data []byte) error {
	if err := s.client.Set(ctx, snapshotKey(roomID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to store room snapshot: %w", err)
	}
	return nil
}

// Load returns (nil, nil) when no snapshot exists.
func (s *RedisSnapshotStore) Load(ctx context.Context, roomID string) ([]byte, error) {
	data, err := s.client.Get(ctx, snapshotKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	return data, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, snapshotKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete room snapshot: %w", err)
	}
	return nil
}
