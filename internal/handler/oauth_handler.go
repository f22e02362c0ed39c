package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waste-portal/internal/middleware"
	"waste-portal/internal/session"
	"waste-portal/internal/workspace"
)

const holdingPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Logging in</title></head>
<body><p>Logging in with Google...</p></body>
</html>
`

type OAuthHandler struct {
	store         session.TokenStore
	workspace     *workspace.Registry
	loginRedirect string
}

func NewOAuthHandler(store session.TokenStore, ws *workspace.Registry, loginRedirect string) *OAuthHandler {
	return &OAuthHandler{store: store, workspace: ws, loginRedirect: loginRedirect}
}

// Handles GET /oauth/success - stores the token from the query string and
// redirects to the post-login page. Without a token the holding page stays
// up; there is no timeout or error path.
func (h *OAuthHandler) Success(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(holdingPage))
		return
	}

	s := middleware.GetSession(c)
	if err := h.store.Set(c.Request.Context(), s.ID, token); err != nil {
		respondError(c, err)
		return
	}
	// views built for a previous identity must not leak into the new one
	h.workspace.Drop(s.ID)

	c.Redirect(http.StatusFound, h.loginRedirect)
}

// Handles POST /logout - clears the session token and drops cached views.
func (h *OAuthHandler) Logout(c *gin.Context) {
	s := middleware.GetSession(c)
	if err := h.store.Clear(c.Request.Context(), s.ID); err != nil {
		respondError(c, err)
		return
	}
	h.workspace.Drop(s.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
