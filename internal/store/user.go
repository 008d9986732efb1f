package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/collab-room-system/pkg/models"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error, "user")
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *UserRepository) UpsertBySpotifyID(ctx context.Context, u *models.User) (*models.User, error) {
	updates := map[string]interface{}{
		"display_name": u.DisplayName,
		"email":        u.Email,
		"avatar_url":   u.AvatarURL,
		"updated_at":   time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "spotify_id"}},
			DoUpdates: clause.Assignments(updates),
		}).
		Create(u).Error; err != nil {
		return nil, err
	}

	var stored models.User
	if err := r.db.WithContext(ctx).First(&stored, "spotify_id = ?", *u.SpotifyID).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &stored, nil
}
