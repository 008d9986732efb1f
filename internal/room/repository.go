package room

import (
	"context"

	"github.com/collab-room-system/pkg/models"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// LoadRoom resolves host, members, songs with their votes, and the queue.
	LoadRoom(ctx context.Context, roomID string) (*models.Room, error)
	// FindRoomByCode prefers an active room and falls back to the newest one.
	FindRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ActiveCodeExists(ctx context.Context, code, exceptRoomID string) (bool, error)
	UpdateRoom(ctx context.Context, roomID string, fields map[string]any) error
	DeleteRoom(ctx context.Context, roomID string) error

	UserExists(ctx context.Context, userID string) (bool, error)
	GetMember(ctx context.Context, roomID, userID string) (*models.Member, error)
	AddMember(ctx context.Context, member *models.Member) error
	DeleteMember(ctx context.Context, roomID, userID string) error

	// FindSong returns (nil, nil) when the room has no song for externalID.
	FindSong(ctx context.Context, roomID, externalID string) (*models.Song, error)
	GetSong(ctx context.Context, roomID, songID string) (*models.Song, error)
	CreateSong(ctx context.Context, song *models.Song) error
	// DeleteSong removes the song with its votes and queue entries and
	// renumbers the remaining queue.
	DeleteSong(ctx context.Context, roomID, songID string) error
}
