package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// ErrTokenNotFound is returned when a user has no stored provider session.
var ErrTokenNotFound = errors.New("token not found")

// TokenInfo is one user's provider session.
type TokenInfo struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// OAuth2 converts the stored tokens for use with an oauth2 client.
func (t *TokenInfo) OAuth2() *oauth2.Token {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		Expiry:       t.ExpiresAt,
	}
}

// TokenInfoFrom captures an oauth2 token for storage.
func TokenInfoFrom(tok *oauth2.Token) *TokenInfo {
	return &TokenInfo{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
}

// tokenHash is the stored layout: one hash per user, expiry in unix millis.
type tokenHash struct {
	AccessToken  string `redis:"access_token"`
	RefreshToken string `redis:"refresh_token"`
	TokenType    string `redis:"token_type"`
	ExpiresAtMs  int64  `redis:"expires_at_ms"`
}

func (h tokenHash) info() *TokenInfo {
	info := &TokenInfo{
		AccessToken:  h.AccessToken,
		RefreshToken: h.RefreshToken,
		TokenType:    h.TokenType,
	}
	if h.ExpiresAtMs > 0 {
		info.ExpiresAt = time.UnixMilli(h.ExpiresAtMs).UTC()
	}
	return info
}

func expiryMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// refreshScript rewrites the given fields only while the session exists, so
// a refresh racing a logout cannot resurrect it.
var refreshScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

type TokenStore struct {
	client redis.Cmdable
	prefix string
	idle   time.Duration
}

type TokenStoreOption func(*TokenStore)

// WithTokenIdleTTL drops a session that has not been written for d. Zero
// keeps sessions until they are deleted.
func WithTokenIdleTTL(d time.Duration) TokenStoreOption {
	return func(s *TokenStore) { s.idle = d }
}

func NewTokenStore(client redis.Cmdable, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{client: client, prefix: "provider_token:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenStore) key(userID string) string {
	return s.prefix + userID
}

// StoreTokens replaces the user's provider session.
func (s *TokenStore) StoreTokens(ctx context.Context, userID string, token *TokenInfo) error {
	key := s.key(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"access_token", token.AccessToken,
			"refresh_token", token.RefreshToken,
			"token_type", token.TokenType,
			"expires_at_ms", expiryMillis(token.ExpiresAt),
		)
		if s.idle > 0 {
			pipe.Expire(ctx, key, s.idle)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *TokenStore) GetTokens(ctx context.Context, userID string) (*TokenInfo, error) {
	cmd := s.client.HGetAll(ctx, s.key(userID))
	fields, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTokenNotFound
	}

	var h tokenHash
	if err := cmd.Scan(&h); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return h.info(), nil
}

func (s *TokenStore) DeleteToken(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// RefreshToken updates the access token and its expiry, keeping the stored
// refresh token unless a new one is given. It returns ErrTokenNotFound when
// the session is gone.
func (s *TokenStore) RefreshToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	args := []any{
		"access_token", tok.AccessToken,
		"expires_at_ms", expiryMillis(tok.Expiry),
	}
	if tok.RefreshToken != "" {
		args = append(args, "refresh_token", tok.RefreshToken)
	}
	if tok.TokenType != "" {
		args = append(args, "token_type", tok.TokenType)
	}

	key := s.key(userID)
	updated, err := refreshScript.Run(ctx, s.client, []string{key}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	if updated == 0 {
		return ErrTokenNotFound
	}
	if s.idle > 0 {
		if err := s.client.Expire(ctx, key, s.idle).Err(); err != nil {
			return fmt.Errorf("failed to extend token: %w", err)
		}
	}
	return nil
}
