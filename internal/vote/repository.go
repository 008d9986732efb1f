package vote

import (
	"context"
	"time"

	"github.com/collab-room-system/pkg/models"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	GetSong(ctx context.Context, songID string) (*models.Song, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	// GetVote returns (nil, nil) when the user has not voted on the song.
	GetVote(ctx context.Context, songID, userID string) (*models.Vote, error)
	CreateVote(ctx context.Context, vote *models.Vote) error
	UpdateVoteValue(ctx context.Context, voteID string, value int, castAt time.Time) error
	DeleteVote(ctx context.Context, voteID string) error
	DeleteUserVote(ctx context.Context, songID, userID string) error
	ListVotes(ctx context.Context, songID string) ([]models.Vote, error)
}
