package spotify

import (
	"context"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/internal/user"
)

// AuthURL is where users are sent to grant access.
func (c *Client) AuthURL(state string) string {
	return c.auth.AuthURL(state)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Upstream(err, provider)
	}
	return tok, nil
}

// Refresh renews an access token from its refresh token.
func (c *Client) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := c.auth.RefreshToken(ctx, tok)
	if err != nil {
		return nil, apperr.Upstream(err, provider)
	}
	return fresh, nil
}

// Profile fetches the account behind tok.
func (c *Client) Profile(ctx context.Context, tok *oauth2.Token) (user.Profile, error) {
	client := spotify.New(c.auth.Client(ctx, tok))
	me, err := client.CurrentUser(ctx)
	if err != nil {
		return user.Profile{}, translate(err, "user")
	}

	p := user.Profile{
		SpotifyID:   me.ID,
		DisplayName: me.DisplayName,
		Email:       me.Email,
	}
	if len(me.Images) > 0 {
		p.AvatarURL = me.Images[0].URL
	}
	return p, nil
}
