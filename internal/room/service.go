// Package room owns room lifecycle, membership and the songs attached to a
// room, and assembles the room snapshot clients render.
package room

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

const (
	defaultCodeAttempts = 10
	maxCodeLength       = 16
	maxNameLength       = 255
)

type Service struct {
	repo         Repository
	catalog      Catalog
	cache        Cache
	codeAttempts int
	newCode      func() (string, error)
	now          func() time.Time
}

type Option func(*Service)

// WithCatalog enables metadata lookup for songs added by external id only.
func WithCatalog(c Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		cache:        noopCache{},
		codeAttempts: defaultCodeAttempts,
		newCode:      randomCode,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Patch lists the room fields a client may change. Nil fields are kept.
type Patch struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"isActive"`
}

// Create opens a room with hostID as its first member. An empty code is
// replaced by a generated one.
func (s *Service) Create(ctx context.Context, code, name, hostID string) (*models.Room, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if hostID == "" {
		return nil, apperr.InvalidArgument("hostId is required")
	}
	if len(code) > maxCodeLength {
		return nil, apperr.InvalidArgument("code must be at most %d characters", maxCodeLength)
	}
	if len(name) > maxNameLength {
		return nil, apperr.InvalidArgument("name must be at most %d characters", maxNameLength)
	}

	var roomID string
	err := s.withCode(ctx, code, func(code string) error {
		return s.repo.Transaction(ctx, func(tx Repository) error {
			ok, err := tx.UserExists(ctx, hostID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("user")
			}

			taken, err := tx.ActiveCodeExists(ctx, code, "")
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict("room with code %s already exists", code)
			}

			now := s.now().UTC()
			room := &models.Room{
				ID:         uuid.NewString(),
				Code:       code,
				Name:       name,
				HostID:     hostID,
				IsActive:   true,
				ActiveCode: models.ActiveCodeFor(code, true),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.CreateRoom(ctx, room); err != nil {
				if errors.Is(err, apperr.ErrConflict) {
					return apperr.Conflict("room with code %s already exists", code)
				}
				return errors.Wrap(err, "failed to create room")
			}

			member := &models.Member{
				RoomID:   room.ID,
				UserID:   hostID,
				IsGuest:  false,
				JoinedAt: now,
			}
			if err := tx.AddMember(ctx, member); err != nil {
				return errors.Wrap(err, "failed to add host as member")
			}

			roomID = room.ID
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Snapshot(ctx, roomID, hostID)
}

// Join adds userID as a member. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, roomID, userID string, isGuest bool) (*models.Room, error) {
	if userID == "" {
		return nil, apperr.InvalidArgument("userId is required")
	}

	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetRoom(ctx, roomID); err != nil {
			return err
		}
		ok, err := tx.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("user")
		}

		existing, err := tx.GetMember(ctx, roomID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		return tx.AddMember(ctx, &models.Member{
			RoomID:   roomID,
			UserID:   userID,
			IsGuest:  isGuest,
			JoinedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, roomID)
	return s.Snapshot(ctx, roomID, userID)
}

// Leave removes userID's membership. Leaving a room one is not a member of
// is a no-op.
func (s *Service) Leave(ctx context.Context, roomID, userID string) (*models.Room, error) {
	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteMember(ctx, roomID, userID); err != nil {
		return nil, errors.Wrap(err, "failed to remove member")
	}

	s.invalidate(ctx, roomID)
	return s.Snapshot(ctx, roomID, userID)
}

func (s *Service) Get(ctx context.Context, roomID, viewerID string) (*models.Room, error) {
	return s.Snapshot(ctx, roomID, viewerID)
}

func (s *Service) GetByCode(ctx context.Context, code, viewerID string) (*models.Room, error) {
	roomID, err := s.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(ctx, roomID, viewerID)
}

// ResolveCode returns the id of the room using code, preferring an active
// room.
func (s *Service) ResolveCode(ctx context.Context, code string) (string, error) {
	room, err := s.repo.FindRoomByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

// Update applies patch. Reactivating a room fails with Conflict if another
// active room took its code meanwhile.
func (s *Service) Update(ctx context.Context, roomID string, patch Patch) (*models.Room, error) {
	fields := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if len(name) > maxNameLength {
			return nil, apperr.InvalidArgument("name must be at most %d characters", maxNameLength)
		}
		fields["name"] = name
	}
	if patch.IsActive != nil {
		fields["is_active"] = *patch.IsActive
	}

	err := s.repo.Transaction(ctx, func(tx Repository) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if patch.IsActive != nil && *patch.IsActive && !room.IsActive {
			taken, err := tx.ActiveCodeExists(ctx, room.Code, room.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Conflict("room with code %s already exists", room.Code)
			}
		}
		if patch.IsActive != nil {
			fields["active_code"] = models.ActiveCodeFor(room.Code, *patch.IsActive)
		}
		fields["updated_at"] = s.now().UTC()
		if err := tx.UpdateRoom(ctx, roomID, fields); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.Conflict("room with code %s already exists", room.Code)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, roomID)
	return s.Snapshot(ctx, roomID, "")
}

// Delete removes the room and everything it owns.
func (s *Service) Delete(ctx context.Context, roomID string) (string, error) {
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetRoom(ctx, roomID); err != nil {
			return err
		}
		return tx.DeleteRoom(ctx, roomID)
	})
	if err != nil {
		return "", err
	}

	s.invalidate(ctx, roomID)
	return roomID, nil
}

// AddSong attaches a track to the room, reusing the room's existing song for
// the same external id.
func (s *Service) AddSong(ctx context.Context, roomID string, track models.Track, userID string) (*models.Room, error) {
	track.ExternalID = strings.TrimSpace(track.ExternalID)
	if track.ExternalID == "" {
		return nil, apperr.InvalidArgument("track id is required")
	}
	if userID == "" {
		return nil, apperr.InvalidArgument("userId is required")
	}

	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	ok, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("user")
	}

	if _, err := s.findOrCreateSong(ctx, roomID, track, userID); err != nil {
		return nil, err
	}

	s.invalidate(ctx, roomID)
	return s.Snapshot(ctx, roomID, userID)
}

func (s *Service) findOrCreateSong(ctx context.Context, roomID string, track models.Track, userID string) (*models.Song, error) {
	existing, err := s.repo.FindSong(ctx, roomID, track.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if !track.Complete() {
		if s.catalog == nil {
			return nil, apperr.InvalidArgument("title and artist are required")
		}
		resolved, err := s.catalog.GetTrack(ctx, track.ExternalID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			return nil, apperr.Upstream(err, "track catalog")
		}
		track = *resolved
	}

	song := &models.Song{
		ID:            uuid.NewString(),
		RoomID:        roomID,
		ExternalID:    track.ExternalID,
		Title:         track.Title,
		Artist:        track.Artist,
		DurationMs:    track.DurationMs,
		ArtworkURL:    track.ArtworkURL,
		AddedByUserID: userID,
		AddedAt:       s.now().UTC(),
	}
	if err := s.repo.CreateSong(ctx, song); err != nil {
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, errors.Wrap(err, "failed to create song")
		}
		// Another add of the same track won the race.
		existing, err := s.repo.FindSong(ctx, roomID, track.ExternalID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, apperr.Conflict("song %s is being added concurrently", track.ExternalID)
		}
		return existing, nil
	}
	return song, nil
}

// RemoveSong detaches a song. The song's adder and the host may do this.
func (s *Service) RemoveSong(ctx context.Context, roomID, songID, requesterID string) (*models.Room, error) {
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		song, err := tx.GetSong(ctx, roomID, songID)
		if err != nil {
			return err
		}
		if requesterID != song.AddedByUserID && requesterID != room.HostID {
			return apperr.Forbidden("only the host or the user who added this song can remove it")
		}
		return tx.DeleteSong(ctx, roomID, songID)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, roomID)
	return s.Snapshot(ctx, roomID, requesterID)
}

// Snapshot returns the resolved room with per-song scores as seen by
// viewerID, songs ranked by score.
func (s *Service) Snapshot(ctx context.Context, roomID, viewerID string) (*models.Room, error) {
	room, err := s.cache.Get(ctx, roomID)
	if err != nil {
		zlog.Warn().Err(err).Str("room_id", roomID).Msg("room cache read failed")
		room = nil
	}
	if room == nil {
		if room, err = s.repo.LoadRoom(ctx, roomID); err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, room); err != nil {
			zlog.Warn().Err(err).Str("room_id", roomID).Msg("room cache write failed")
		}
	}

	for i := range room.Songs {
		result := models.Tally(room.Songs[i].Votes, viewerID)
		room.Songs[i].VoteCount = result.VoteCount
		room.Songs[i].UserVote = result.UserVote
	}
	models.SortSongs(room.Songs)
	return room, nil
}

// Invalidate drops the cached snapshot. Callers that change votes or the
// queue through other services use it to keep snapshots fresh.
func (s *Service) Invalidate(ctx context.Context, roomID string) {
	s.invalidate(ctx, roomID)
}

func (s *Service) invalidate(ctx context.Context, roomID string) {
	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		zlog.Warn().Err(err).Str("room_id", roomID).Msg("room cache invalidation failed")
	}
}
