package user

import (
	"context"

	"github.com/collab-room-system/pkg/models"
)

type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// UpsertBySpotifyID inserts the user or refreshes the profile of the
	// user already linked to that provider id, returning the stored row.
	UpsertBySpotifyID(ctx context.Context, user *models.User) (*models.User, error)
}
