package session

import "context"

// Session is what the middleware resolved for the current request.
type Session struct {
	ID     string
	Token  string
	Claims *Claims
}

// UserID is empty when the token carried no readable claims.
func (s *Session) UserID() string {
	if s == nil || s.Claims == nil {
		return ""
	}
	return s.Claims.UserID
}

func (s *Session) ResidenceID() string {
	if s == nil || s.Claims == nil {
		return ""
	}
	return s.Claims.ResidenceID
}

type contextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request session, or nil outside the middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
