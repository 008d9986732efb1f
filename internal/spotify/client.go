// Package spotify adapts the Spotify Web API to the room engine: track
// lookup and search, user login, and playback control.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/internal/config"
	"github.com/collab-room-system/pkg/models"
)

const (
	provider      = "spotify"
	maxSearchSize = 50
)

var scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeStreaming,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
}

// Client talks to Spotify. Catalog calls use the app's client credentials,
// user calls use that user's stored tokens.
type Client struct {
	auth       *spotifyauth.Authenticator
	catalog    *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

func New(ctx context.Context, cfg config.SpotifyConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURI),
		spotifyauth.WithScopes(scopes...),
	)

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	return &Client{
		auth:       auth,
		catalog:    spotify.New(creds.Client(ctx)),
		market:     cfg.Market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack resolves a track by id, URL or URI.
func (c *Client) GetTrack(ctx context.Context, externalID string) (*models.Track, error) {
	id := extractTrackID(externalID)
	if id == "" {
		return nil, apperr.InvalidArgument("track id is required")
	}

	var opts []spotify.RequestOption
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.catalog.GetTrack(ctx, spotify.ID(id), opts...)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, translate(err, "track")
	}

	track := convertTrack(result)
	return &track, nil
}

// Search runs a free-text track search.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidArgument("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxSearchSize {
		limit = maxSearchSize
	}

	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.catalog.Search(ctx, query, spotify.SearchTypeTrack, opts...)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, translate(err, "track")
	}

	tracks := make([]models.Track, 0)
	if result.Tracks != nil {
		for i := range result.Tracks.Tracks {
			tracks = append(tracks, convertTrack(&result.Tracks.Tracks[i]))
		}
	}
	return tracks, nil
}

func convertTrack(t *spotify.FullTrack) models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	return models.Track{
		ExternalID: string(t.ID),
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		DurationMs: int(t.Duration),
		ArtworkURL: artwork,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

func isRetryable(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

// translate maps a Spotify failure onto the shared error kinds.
func translate(err error, resource string) error {
	if apperr.HTTPStatus(err) != http.StatusInternalServerError {
		return err
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound:
			return apperr.NotFound(resource)
		case http.StatusBadRequest:
			return apperr.InvalidArgument("%s: %s", resource, apiErr.Message)
		}
	}
	return apperr.Upstream(err, provider)
}

// extractTrackID accepts a bare id, a spotify:track: URI or an
// open.spotify.com URL.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
