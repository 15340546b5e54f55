package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/auth"
)

const (
	ctxKeyUser    = "auth_user"
	ctxKeySession = "auth_session"
)

type SessionLookup interface {
	Lookup(ctx context.Context, token string) (auth.User, auth.Session, error)
}

type SessionCfg struct {
	Sessions   SessionLookup
	CookieName string
	Secure     bool
	Logger     *slog.Logger
}

// SessionMiddleware resolves the session cookie to a user. Unknown or
// expired tokens clear the cookie; lookup failures leave the request
// anonymous.
func SessionMiddleware(cfg SessionCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cfg.CookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		u, sess, err := cfg.Sessions.Lookup(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(ctxKeyUser, u)
			c.Set(ctxKeySession, sess)
		case errors.Is(err, auth.ErrSessionNotFound):
			ClearSessionCookie(c, cfg.CookieName, cfg.Secure)
		default:
			if cfg.Logger != nil {
				cfg.Logger.WarnContext(c.Request.Context(), "session lookup failed",
					slog.String("request_id", GetRequestID(c)), slog.Any("err", err))
			}
		}
		c.Next()
	}
}

func SetSessionCookie(c *gin.Context, name, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, token, maxAge, "/", "", secure, true)
}

func ClearSessionCookie(c *gin.Context, name string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", secure, true)
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (auth.User, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return auth.User{}, false
	}
	u, ok := v.(auth.User)
	return u, ok && u.ID != ""
}

// SetCurrentUser is used by handlers that authenticate mid-request and by tests.
func SetCurrentUser(c *gin.Context, u auth.User) {
	c.Set(ctxKeyUser, u)
}
