package room

import (
	"context"

	"github.com/collab-room-system/pkg/models"
)

// Cache stores undecorated room snapshots. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, roomID string) (*models.Room, error)
	Set(ctx context.Context, room *models.Room) error
	Invalidate(ctx context.Context, roomID string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*models.Room, error) {
	return nil, nil
}

func (noopCache) Set(context.Context, *models.Room) error {
	return nil
}

func (noopCache) Invalidate(context.Context, string) error {
	return nil
}

// Catalog resolves track metadata for an external id.
type Catalog interface {
	GetTrack(ctx context.Context, externalID string) (*models.Track, error)
}
