package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/collab-room-system/internal/room"
	"github.com/collab-room-system/pkg/models"
)

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Transaction(ctx context.Context, fn func(room.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&RoomRepository{db: tx})
	})
}

func (r *RoomRepository) CreateRoom(ctx context.Context, rm *models.Room) error {
	return translate(r.db.WithContext(ctx).Omit("Host", "Members", "Songs", "Queue").Create(rm).Error, "room")
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return getRoom(ctx, r.db, roomID)
}

func (r *RoomRepository) LoadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var rm models.Room
	err := r.db.WithContext(ctx).
		Preload("Host").
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at asc")
		}).
		Preload("Members.User").
		Preload("Songs", func(db *gorm.DB) *gorm.DB {
			return db.Order("added_at asc")
		}).
		Preload("Songs.AddedBy").
		Preload("Songs.Votes").
		Preload("Queue", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Preload("Queue.Song").
		Preload("Queue.User").
		First(&rm, "id = ?", roomID).Error
	if err != nil {
		return nil, translate(err, "room")
	}
	return &rm, nil
}

func (r *RoomRepository) FindRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var rm models.Room
	if err := r.db.WithContext(ctx).
		Where("code = ?", code).
		Order("is_active desc, created_at desc").
		First(&rm).Error; err != nil {
		return nil, translate(err, "room")
	}
	return &rm, nil
}

func (r *RoomRepository) ActiveCodeExists(ctx context.Context, code, exceptRoomID string) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("active_code = ?", code)
	if exceptRoomID != "" {
		query = query.Where("id <> ?", exceptRoomID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RoomRepository) UpdateRoom(ctx context.Context, roomID string, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(fields)
	if result.Error != nil {
		return translate(result.Error, "active room code")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "room")
	}
	return nil
}

// DeleteRoom removes the room and the rows it owns. Call inside Transaction.
func (r *RoomRepository) DeleteRoom(ctx context.Context, roomID string) error {
	db := r.db.WithContext(ctx)
	songIDs := db.Model(&models.Song{}).Select("id").Where("room_id = ?", roomID)

	steps := []func() error{
		func() error { return db.Where("song_id IN (?)", songIDs).Delete(&models.Vote{}).Error },
		func() error { return db.Where("room_id = ?", roomID).Delete(&models.QueueEntry{}).Error },
		func() error { return db.Where("room_id = ?", roomID).Delete(&models.Song{}).Error },
		func() error { return db.Where("room_id = ?", roomID).Delete(&models.Member{}).Error },
		func() error { return db.Where("room_id = ?", roomID).Delete(&models.Message{}).Error },
		func() error { return db.Where("id = ?", roomID).Delete(&models.Room{}).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RoomRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	return userExists(ctx, r.db, userID)
}

func (r *RoomRepository) GetMember(ctx context.Context, roomID, userID string) (*models.Member, error) {
	var m models.Member
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *RoomRepository) AddMember(ctx context.Context, m *models.Member) error {
	return translate(r.db.WithContext(ctx).Omit("User").Create(m).Error, "member")
}

func (r *RoomRepository) DeleteMember(ctx context.Context, roomID, userID string) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.Member{}).Error
}

func (r *RoomRepository) FindSong(ctx context.Context, roomID, externalID string) (*models.Song, error) {
	var song models.Song
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND external_id = ?", roomID, externalID).
		First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}

func (r *RoomRepository) GetSong(ctx context.Context, roomID, songID string) (*models.Song, error) {
	var song models.Song
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND id = ?", roomID, songID).
		First(&song).Error; err != nil {
		return nil, translate(err, "song")
	}
	return &song, nil
}

func (r *RoomRepository) CreateSong(ctx context.Context, song *models.Song) error {
	return translate(r.db.WithContext(ctx).Omit("AddedBy", "Votes").Create(song).Error, "song")
}

// DeleteSong removes the song, its votes and queue entries, then closes the
// gaps in the queue. Call inside Transaction.
func (r *RoomRepository) DeleteSong(ctx context.Context, roomID, songID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("song_id = ?", songID).Delete(&models.Vote{}).Error; err != nil {
		return err
	}
	if err := db.Where("room_id = ? AND song_id = ?", roomID, songID).Delete(&models.QueueEntry{}).Error; err != nil {
		return err
	}
	if err := db.Where("room_id = ? AND id = ?", roomID, songID).Delete(&models.Song{}).Error; err != nil {
		return err
	}
	return renumberQueue(ctx, r.db, roomID)
}
