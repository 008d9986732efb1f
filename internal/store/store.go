// Package store implements the domain repositories on top of gorm.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

// translate maps gorm errors onto the shared error kinds. The database must
// be opened with TranslateError for duplicate keys to be recognised.
func translate(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(resource)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s already exists", resource)
	default:
		return err
	}
}

func userExists(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func getSong(ctx context.Context, db *gorm.DB, songID string) (*models.Song, error) {
	var song models.Song
	if err := db.WithContext(ctx).First(&song, "id = ?", songID).Error; err != nil {
		return nil, translate(err, "song")
	}
	return &song, nil
}

func getRoom(ctx context.Context, db *gorm.DB, roomID string) (*models.Room, error) {
	var room models.Room
	if err := db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, translate(err, "room")
	}
	return &room, nil
}

// renumberQueue rewrites the room's positions as 1..n in their current order.
func renumberQueue(ctx context.Context, db *gorm.DB, roomID string) error {
	var entries []models.QueueEntry
	if err := db.WithContext(ctx).
		Select("id", "position").
		Where("room_id = ?", roomID).
		Order("position asc, added_at asc").
		Find(&entries).Error; err != nil {
		return err
	}
	for i, e := range entries {
		if e.Position == i+1 {
			continue
		}
		if err := db.WithContext(ctx).
			Model(&models.QueueEntry{}).
			Where("id = ?", e.ID).
			Update("position", i+1).Error; err != nil {
			return err
		}
	}
	return nil
}
