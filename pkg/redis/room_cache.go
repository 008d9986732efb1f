package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collab-room-system/pkg/models"
)

// RoomCache keeps the last loaded room snapshot per room id. Entries are
// stored before any per-viewer decoration is applied.
type RoomCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRoomCache(client redis.Cmdable, ttl time.Duration) *RoomCache {
	return &RoomCache{client: client, ttl: ttl}
}

func roomKey(roomID string) string {
	return fmt.Sprintf("room:%s", roomID)
}

// Get returns the cached room, or (nil, nil) on a miss.
func (c *RoomCache) Get(ctx context.Context, roomID string) (*models.Room, error) {
	data, err := c.client.Get(ctx, roomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

func (c *RoomCache) Set(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := c.client.Set(ctx, roomKey(room.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache room: %w", err)
	}
	return nil
}

func (c *RoomCache) Invalidate(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, roomKey(roomID)).Err()
}
