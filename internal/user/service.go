package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

const maxNameLength = 64

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateGuest registers a user without a provider identity.
func (s *Service) CreateGuest(ctx context.Context, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArgument("name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperr.InvalidArgument("name must be at most %d characters", maxNameLength)
	}

	now := time.Now().UTC()
	u := &models.User{
		ID:          uuid.NewString(),
		DisplayName: name,
		IsGuest:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.GetUser(ctx, userID)
}

// Profile is the identity provider's view of a user.
type Profile struct {
	SpotifyID   string
	DisplayName string
	Email       string
	AvatarURL   string
}

// UpsertFromProvider links a provider profile to a local user.
func (s *Service) UpsertFromProvider(ctx context.Context, p Profile) (*models.User, error) {
	if p.SpotifyID == "" {
		return nil, apperr.InvalidArgument("provider id is required")
	}
	name := p.DisplayName
	if name == "" {
		name = p.SpotifyID
	}

	spotifyID := p.SpotifyID
	now := time.Now().UTC()
	return s.repo.UpsertBySpotifyID(ctx, &models.User{
		ID:          uuid.NewString(),
		SpotifyID:   &spotifyID,
		DisplayName: name,
		Email:       p.Email,
		AvatarURL:   p.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
