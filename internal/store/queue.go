package store

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/collab-room-system/internal/queue"
	"github.com/collab-room-system/pkg/models"
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Transaction(ctx context.Context, fn func(queue.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&QueueRepository{db: tx})
	})
}

func (r *QueueRepository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return getRoom(ctx, r.db, roomID)
}

func (r *QueueRepository) LockRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&room, "id = ?", roomID).Error; err != nil {
		return nil, translate(err, "room")
	}
	return &room, nil
}

func (r *QueueRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	return userExists(ctx, r.db, userID)
}

func (r *QueueRepository) GetSong(ctx context.Context, songID string) (*models.Song, error) {
	return getSong(ctx, r.db, songID)
}

func (r *QueueRepository) GetEntry(ctx context.Context, roomID, entryID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := r.db.WithContext(ctx).
		Preload("Song").
		Preload("User").
		Where("room_id = ? AND id = ?", roomID, entryID).
		First(&entry).Error; err != nil {
		return nil, translate(err, "queue entry")
	}
	return &entry, nil
}

func (r *QueueRepository) GetEntryAt(ctx context.Context, roomID string, position int) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND position = ?", roomID, position).
		First(&entry).Error; err != nil {
		return nil, translate(err, "queue entry")
	}
	return &entry, nil
}

func (r *QueueRepository) MaxPosition(ctx context.Context, roomID string) (int, error) {
	var max sql.NullInt64
	if err := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Select("MAX(position)").
		Where("room_id = ?", roomID).
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

func (r *QueueRepository) CountEntries(ctx context.Context, roomID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("room_id = ?", roomID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *QueueRepository) CreateEntry(ctx context.Context, entry *models.QueueEntry) error {
	return translate(r.db.WithContext(ctx).Omit("Song", "User").Create(entry).Error, "queue entry")
}

func (r *QueueRepository) DeleteEntry(ctx context.Context, entryID string) error {
	return r.db.WithContext(ctx).Delete(&models.QueueEntry{}, "id = ?", entryID).Error
}

func (r *QueueRepository) ShiftPositions(ctx context.Context, roomID string, from, to, delta int) error {
	if from > to || delta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("room_id = ? AND position BETWEEN ? AND ?", roomID, from, to).
		Update("position", gorm.Expr("position + ?", delta)).Error
}

func (r *QueueRepository) SetPosition(ctx context.Context, entryID string, position int) error {
	return r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("id = ?", entryID).
		Update("position", position).Error
}

func (r *QueueRepository) DeleteRoomEntries(ctx context.Context, roomID string) error {
	return r.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.QueueEntry{}).Error
}

func (r *QueueRepository) ListEntries(ctx context.Context, roomID string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	if err := r.db.WithContext(ctx).
		Preload("Song").
		Preload("User").
		Where("room_id = ?", roomID).
		Order("position asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
