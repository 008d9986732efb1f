package vote

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SongRoom returns the room a song belongs to.
func (s *Service) SongRoom(ctx context.Context, songID string) (string, error) {
	song, err := s.repo.GetSong(ctx, songID)
	if err != nil {
		return "", err
	}
	return song.RoomID, nil
}

// Cast applies the toggle rule: a first vote is inserted, repeating the
// same value retracts it, and a different value replaces it.
func (s *Service) Cast(ctx context.Context, songID, userID string, value int) (models.VoteResult, error) {
	if value != 1 && value != -1 {
		return models.VoteResult{}, apperr.InvalidArgument("vote value must be 1 or -1, got %d", value)
	}
	if userID == "" {
		return models.VoteResult{}, apperr.InvalidArgument("userId is required")
	}

	var result models.VoteResult
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetSong(ctx, songID); err != nil {
			return err
		}
		ok, err := tx.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("user")
		}

		existing, err := tx.GetVote(ctx, songID, userID)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			err = tx.CreateVote(ctx, &models.Vote{
				ID:     uuid.NewString(),
				SongID: songID,
				UserID: userID,
				Value:  value,
				CastAt: s.now().UTC(),
			})
		case existing.Value == value:
			err = tx.DeleteVote(ctx, existing.ID)
		default:
			err = tx.UpdateVoteValue(ctx, existing.ID, value, s.now().UTC())
		}
		if err != nil {
			return errors.Wrap(err, "failed to record vote")
		}

		votes, err := tx.ListVotes(ctx, songID)
		if err != nil {
			return err
		}
		result = models.Tally(votes, userID)
		return nil
	})
	if err != nil {
		return models.VoteResult{}, err
	}
	return result, nil
}

// Remove deletes any vote by userID on the song.
func (s *Service) Remove(ctx context.Context, songID, userID string) (models.VoteResult, error) {
	var result models.VoteResult
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetSong(ctx, songID); err != nil {
			return err
		}
		if err := tx.DeleteUserVote(ctx, songID, userID); err != nil {
			return errors.Wrap(err, "failed to remove vote")
		}
		votes, err := tx.ListVotes(ctx, songID)
		if err != nil {
			return err
		}
		result = models.Tally(votes, "")
		return nil
	})
	if err != nil {
		return models.VoteResult{}, err
	}
	return result, nil
}

// Aggregate computes the song's score from its vote rows. userID may be
// empty.
func (s *Service) Aggregate(ctx context.Context, songID, userID string) (models.VoteResult, error) {
	if _, err := s.repo.GetSong(ctx, songID); err != nil {
		return models.VoteResult{}, err
	}
	votes, err := s.repo.ListVotes(ctx, songID)
	if err != nil {
		return models.VoteResult{}, err
	}
	return models.Tally(votes, userID), nil
}
