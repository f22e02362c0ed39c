package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"waste-portal/config"
	"waste-portal/internal/backend"
	"waste-portal/internal/session"
)

const sessionKey = "session"

// Session resolves the browser session for every request. A missing or
// malformed cookie gets a fresh session id. The stored token, if any, is
// forwarded to backend calls made with the request context; its claims are
// read when the token verifies and ignored otherwise. No request is
// rejected here.
func Session(store session.TokenStore, parser *session.Parser, cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		sid, err := c.Cookie(cfg.CookieName)
		if err != nil || !validSessionID(sid) {
			sid = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, sid, 0, "/", "", cfg.SecureCookie, true)
		}

		token, err := store.Get(ctx, sid)
		if err != nil {
			slog.WarnContext(ctx, "session: load token", "error", err)
			token = ""
		}

		s := &session.Session{ID: sid, Token: token}
		if token != "" {
			if claims, err := parser.Parse(token); err == nil {
				s.Claims = claims
			}
			ctx = backend.WithToken(ctx, token)
		}

		c.Set(sessionKey, s)
		c.Request = c.Request.WithContext(session.WithSession(ctx, s))
		c.Next()
	}
}

// GetSession returns the session resolved by Session.
func GetSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return session.FromContext(c.Request.Context())
}

func validSessionID(sid string) bool {
	_, err := uuid.Parse(sid)
	return err == nil
}
