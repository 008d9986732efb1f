// Package queue maintains the ordered per-room playback queue. Positions
// are 1-based and kept dense by every mutation.
package queue

import (
	"context"
	"math"
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

// Enqueue appends songID to the end of the room's queue.
func (s *Service) Enqueue(ctx context.Context, roomID, songID, userID string) (*models.QueueEntry, error) {
	if songID == "" || userID == "" {
		return nil, apperr.InvalidArgument("songId and userId are required")
	}

	var entryID string
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.LockRoom(ctx, roomID); err != nil {
			return err
		}
		ok, err := tx.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("user")
		}
		song, err := tx.GetSong(ctx, songID)
		if err != nil {
			return err
		}
		if song.RoomID != roomID {
			return apperr.NotFound("song")
		}

		last, err := tx.MaxPosition(ctx, roomID)
		if err != nil {
			return err
		}

		entry := &models.QueueEntry{
			ID:       uuid.NewString(),
			RoomID:   roomID,
			SongID:   songID,
			UserID:   userID,
			Position: last + 1,
			Status:   models.QueueStatusQueued,
			AddedAt:  s.now().UTC(),
		}
		if err := tx.CreateEntry(ctx, entry); err != nil {
			return errors.Wrap(err, "failed to create queue entry")
		}
		entryID = entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetEntry(ctx, roomID, entryID)
}

// Dequeue removes an entry added by requesterID and closes the gap.
func (s *Service) Dequeue(ctx context.Context, roomID, entryID, requesterID string) error {
	return s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.LockRoom(ctx, roomID); err != nil {
			return err
		}
		entry, err := tx.GetEntry(ctx, roomID, entryID)
		if err != nil {
			return err
		}
		if entry.UserID != requesterID {
			return apperr.Forbidden("only the user who added this entry can remove it")
		}

		if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
			return errors.Wrap(err, "failed to delete queue entry")
		}
		return tx.ShiftPositions(ctx, roomID, entry.Position+1, math.MaxInt32, -1)
	})
}

// Move relocates the entry identified by entryID to position to.
func (s *Service) Move(ctx context.Context, roomID, entryID string, to int, requesterID string) error {
	return s.move(ctx, roomID, to, requesterID, func(tx Repository) (*models.QueueEntry, error) {
		return tx.GetEntry(ctx, roomID, entryID)
	})
}

// MoveFrom relocates the entry currently at position from.
func (s *Service) MoveFrom(ctx context.Context, roomID string, from, to int, requesterID string) error {
	if from < 1 {
		return apperr.InvalidArgument("fromPosition must be at least 1")
	}
	return s.move(ctx, roomID, to, requesterID, func(tx Repository) (*models.QueueEntry, error) {
		return tx.GetEntryAt(ctx, roomID, from)
	})
}

func (s *Service) move(ctx context.Context, roomID string, to int, requesterID string, find func(Repository) (*models.QueueEntry, error)) error {
	if to < 1 {
		return apperr.InvalidArgument("position must be at least 1")
	}

	return s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.LockRoom(ctx, roomID); err != nil {
			return err
		}
		entry, err := find(tx)
		if err != nil {
			return err
		}
		if entry.UserID != requesterID {
			return apperr.Forbidden("only the user who added this entry can move it")
		}

		count, err := tx.CountEntries(ctx, roomID)
		if err != nil {
			return err
		}
		if to > count {
			return apperr.InvalidArgument("position %d is out of range 1..%d", to, count)
		}

		from := entry.Position
		switch {
		case to == from:
			return nil
		case to > from:
			err = tx.ShiftPositions(ctx, roomID, from+1, to, -1)
		default:
			err = tx.ShiftPositions(ctx, roomID, to, from-1, 1)
		}
		if err != nil {
			return errors.Wrap(err, "failed to shift queue positions")
		}
		return tx.SetPosition(ctx, entry.ID, to)
	})
}

// Clear empties the queue. Only the room host may do this.
func (s *Service) Clear(ctx context.Context, roomID, requesterID string) error {
	return s.repo.Transaction(ctx, func(tx Repository) error {
		room, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.HostID != requesterID {
			return apperr.Forbidden("only the host can clear the queue")
		}
		return tx.DeleteRoomEntries(ctx, roomID)
	})
}

// List returns the queue in ascending position with songs and adders loaded.
func (s *Service) List(ctx context.Context, roomID string) ([]models.QueueEntry, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, roomID)
}
