package spotify

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
	"github.com/collab-room-system/pkg/redis"
)

// Tokens is the per-user provider session storage.
type Tokens interface {
	GetTokens(ctx context.Context, userID string) (*redis.TokenInfo, error)
	RefreshToken(ctx context.Context, userID string, tok *oauth2.Token) error
}

// Player applies playback commands to a user's active device.
type Player struct {
	client *Client
	tokens Tokens
}

func NewPlayer(client *Client, tokens Tokens) *Player {
	return &Player{client: client, tokens: tokens}
}

// Apply returns apperr.ErrNoSession when userID never logged in.
func (p *Player) Apply(ctx context.Context, userID string, cmd models.PlaybackCommand) error {
	info, err := p.tokens.GetTokens(ctx, userID)
	if errors.Is(err, redis.ErrTokenNotFound) {
		return errors.Wrapf(apperr.ErrNoSession, "user %s", userID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load provider session")
	}

	stored := info.OAuth2()
	client := spotify.New(p.client.auth.Client(ctx, stored))

	if err := execute(ctx, client, cmd); err != nil {
		return translate(err, "device")
	}

	// the oauth2 transport may have refreshed the access token
	if current, err := client.Token(); err == nil && current.AccessToken != stored.AccessToken {
		if err := p.tokens.RefreshToken(ctx, userID, current); err != nil {
			zlog.Warn().Err(err).Str("user_id", userID).Msg("failed to persist refreshed token")
		}
	}
	return nil
}

func execute(ctx context.Context, client *spotify.Client, cmd models.PlaybackCommand) error {
	opts := playOptions(cmd)
	switch cmd.Action {
	case models.PlaybackPlay:
		if err := client.PlayOpt(ctx, opts); err != nil {
			return err
		}
		if cmd.PositionMs != nil {
			return client.SeekOpt(ctx, *cmd.PositionMs, opts)
		}
		return nil
	case models.PlaybackPause:
		return client.PauseOpt(ctx, opts)
	case models.PlaybackSeek:
		if cmd.PositionMs == nil {
			return apperr.InvalidArgument("positionMs is required for seek")
		}
		return client.SeekOpt(ctx, *cmd.PositionMs, opts)
	case models.PlaybackNext:
		return client.NextOpt(ctx, opts)
	case models.PlaybackPrevious:
		return client.PreviousOpt(ctx, opts)
	default:
		return apperr.InvalidArgument("unknown playback action %q", cmd.Action)
	}
}

func playOptions(cmd models.PlaybackCommand) *spotify.PlayOptions {
	opts := &spotify.PlayOptions{}
	if cmd.DeviceID != "" {
		id := spotify.ID(cmd.DeviceID)
		opts.DeviceID = &id
	}
	if cmd.Action == models.PlaybackPlay {
		if id := extractTrackID(cmd.TrackID); id != "" {
			opts.URIs = []spotify.URI{spotify.URI("spotify:track:" + id)}
		}
	}
	return opts
}
