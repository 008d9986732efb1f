package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/collab-room-system/internal/vote"
	"github.com/collab-room-system/pkg/models"
)

type VoteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

func (r *VoteRepository) Transaction(ctx context.Context, fn func(vote.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&VoteRepository{db: tx})
	})
}

func (r *VoteRepository) GetSong(ctx context.Context, songID string) (*models.Song, error) {
	return getSong(ctx, r.db, songID)
}

func (r *VoteRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	return userExists(ctx, r.db, userID)
}

func (r *VoteRepository) GetVote(ctx context.Context, songID, userID string) (*models.Vote, error) {
	var v models.Vote
	err := r.db.WithContext(ctx).
		Where("song_id = ? AND user_id = ?", songID, userID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VoteRepository) CreateVote(ctx context.Context, v *models.Vote) error {
	return translate(r.db.WithContext(ctx).Create(v).Error, "vote")
}

func (r *VoteRepository) UpdateVoteValue(ctx context.Context, voteID string, value int, castAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("id = ?", voteID).
		Updates(map[string]any{
			"value":   value,
			"cast_at": castAt,
		}).Error
}

func (r *VoteRepository) DeleteVote(ctx context.Context, voteID string) error {
	return r.db.WithContext(ctx).Delete(&models.Vote{}, "id = ?", voteID).Error
}

func (r *VoteRepository) DeleteUserVote(ctx context.Context, songID, userID string) error {
	return r.db.WithContext(ctx).
		Where("song_id = ? AND user_id = ?", songID, userID).
		Delete(&models.Vote{}).Error
}

func (r *VoteRepository) ListVotes(ctx context.Context, songID string) ([]models.Vote, error) {
	var votes []models.Vote
	if err := r.db.WithContext(ctx).Where("song_id = ?", songID).Find(&votes).Error; err != nil {
		return nil, err
	}
	return votes, nil
}
