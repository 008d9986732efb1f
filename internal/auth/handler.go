package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/internal/user"
	"github.com/collab-room-system/pkg/jwt"
	"github.com/collab-room-system/pkg/models"
	"github.com/collab-room-system/pkg/redis"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

// Identity is the OAuth provider.
type Identity interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
	Profile(ctx context.Context, tok *oauth2.Token) (user.Profile, error)
}

type TokenStore interface {
	StoreTokens(ctx context.Context, userID string, token *redis.TokenInfo) error
	GetTokens(ctx context.Context, userID string) (*redis.TokenInfo, error)
	RefreshToken(ctx context.Context, userID string, tok *oauth2.Token) error
	DeleteToken(ctx context.Context, userID string) error
}

type Users interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	UpsertFromProvider(ctx context.Context, p user.Profile) (*models.User, error)
}

type Handler struct {
	identity     Identity
	tokens       TokenStore
	users        Users
	issuer       *jwt.Issuer
	frontendURL  string
	secureCookie bool
	tokenTTL     time.Duration
}

// NewHandler builds the login routes. identity may be nil, in which case
// provider login answers 503 and only the session routes work.
func NewHandler(identity Identity, tokens TokenStore, users Users, issuer *jwt.Issuer, frontendURL string, tokenTTL time.Duration, secureCookie bool) *Handler {
	return &Handler{
		identity:     identity,
		tokens:       tokens,
		users:        users,
		issuer:       issuer,
		frontendURL:  frontendURL,
		secureCookie: secureCookie,
		tokenTTL:     tokenTTL,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.GET("/login", h.login)
		auth.GET("/callback", h.callback)
		auth.POST("/logout", h.logout)

		protected := auth.Group("", Required(h.issuer))
		protected.GET("/me", h.me)
		protected.GET("/refresh", h.refresh)
	}
}

func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zlog.Error().Err(err).Str("path", c.FullPath()).Msg("auth request failed")
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func (h *Handler) login(c *gin.Context) {
	if h.identity == nil {
		writeError(c, apperr.Upstream(errors.New("provider login is not configured"), "spotify"))
		return
	}

	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, int(stateTTL.Seconds()), "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"url": h.identity.AuthURL(state)})
}

func (h *Handler) callback(c *gin.Context) {
	if h.identity == nil {
		writeError(c, apperr.Upstream(errors.New("provider login is not configured"), "spotify"))
		return
	}

	code := c.Query("code")
	if code == "" {
		writeError(c, apperr.InvalidArgument("code is required"))
		return
	}
	if expected, err := c.Cookie(stateCookie); err != nil || expected != c.Query("state") {
		writeError(c, apperr.InvalidArgument("state mismatch"))
		return
	}

	ctx := c.Request.Context()
	tok, err := h.identity.Exchange(ctx, code)
	if err != nil {
		writeError(c, err)
		return
	}
	profile, err := h.identity.Profile(ctx, tok)
	if err != nil {
		writeError(c, err)
		return
	}
	u, err := h.users.UpsertFromProvider(ctx, profile)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.tokens.StoreTokens(ctx, u.ID, redis.TokenInfoFrom(tok)); err != nil {
		writeError(c, errors.Wrap(err, "failed to store provider tokens"))
		return
	}

	session, err := h.issuer.GenerateToken(u.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	zlog.Info().Str("user_id", u.ID).Msg("user logged in")

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, "", -1, "/", "", h.secureCookie, true)
	c.SetCookie(cookieName, session, int(h.tokenTTL.Seconds()), "/", "", h.secureCookie, true)
	c.Redirect(http.StatusFound, h.frontendURL)
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.GetString(ContextUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) refresh(c *gin.Context) {
	if h.identity == nil {
		writeError(c, apperr.Upstream(errors.New("provider login is not configured"), "spotify"))
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString(ContextUserID)

	info, err := h.tokens.GetTokens(ctx, userID)
	if errors.Is(err, redis.ErrTokenNotFound) {
		writeError(c, errors.Wrapf(apperr.ErrNoSession, "user %s", userID))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	fresh, err := h.identity.Refresh(ctx, info.OAuth2())
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.tokens.RefreshToken(ctx, userID, fresh); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token refreshed", "expiresAt": fresh.Expiry})
}

func (h *Handler) logout(c *gin.Context) {
	if token := tokenFrom(c); token != "" {
		if claims, err := h.issuer.ValidateToken(token); err == nil {
			if err := h.tokens.DeleteToken(c.Request.Context(), claims.UserID); err != nil {
				zlog.Warn().Err(err).Str("user_id", claims.UserID).Msg("failed to delete provider tokens")
			}
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, "", -1, "/", "", h.secureCookie, true)
	c.Status(http.StatusNoContent)
}
