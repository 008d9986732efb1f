package queue

import (
	"context"

	"github.com/collab-room-system/pkg/models"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// LockRoom reads the room row and holds a write lock on it until the
	// transaction ends, so queue mutations from different server instances
	// do not interleave.
	LockRoom(ctx context.Context, roomID string) (*models.Room, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	GetSong(ctx context.Context, songID string) (*models.Song, error)
	// GetEntry and GetEntryAt only match entries of roomID.
	GetEntry(ctx context.Context, roomID, entryID string) (*models.QueueEntry, error)
	GetEntryAt(ctx context.Context, roomID string, position int) (*models.QueueEntry, error)
	MaxPosition(ctx context.Context, roomID string) (int, error)
	CountEntries(ctx context.Context, roomID string) (int, error)
	CreateEntry(ctx context.Context, entry *models.QueueEntry) error
	DeleteEntry(ctx context.Context, entryID string) error
	// ShiftPositions adds delta to every position in [from, to].
	ShiftPositions(ctx context.Context, roomID string, from, to, delta int) error
	SetPosition(ctx context.Context, entryID string, position int) error
	DeleteRoomEntries(ctx context.Context, roomID string) error
	ListEntries(ctx context.Context, roomID string) ([]models.QueueEntry, error)
}
