package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParser(t *testing.T) {
	p := NewParser("s3cret")
	claims := Claims{
		UserID:      "u1",
		ResidenceID: "r9",
		Role:        "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("valid", func(t *testing.T) {
		got, err := p.Parse(sign(t, "s3cret", jwt.SigningMethodHS256, claims))
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "r9", got.ResidenceID)
		assert.Equal(t, "admin", got.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := p.Parse(sign(t, "other", jwt.SigningMethodHS256, claims))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		c := claims
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := p.Parse(sign(t, "s3cret", jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := p.Parse("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no secret configured", func(t *testing.T) {
		_, err := NewParser("").Parse(sign(t, "s3cret", jwt.SigningMethodHS256, claims))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	tok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.Set(ctx, "a", "t1"))
	require.NoError(t, s.Set(ctx, "a", "t2"))
	tok, _ = s.Get(ctx, "a")
	assert.Equal(t, "t2", tok)

	require.NoError(t, s.Clear(ctx, "a"))
	tok, _ = s.Get(ctx, "a")
	assert.Empty(t, tok)
}

func TestSessionAccessors(t *testing.T) {
	var nilSession *Session
	assert.Empty(t, nilSession.UserID())
	assert.Nil(t, FromContext(context.Background()))

	s := &Session{ID: "sid", Claims: &Claims{UserID: "u", ResidenceID: "r"}}
	ctx := WithSession(context.Background(), s)
	assert.Equal(t, "u", FromContext(ctx).UserID())
	assert.Equal(t, "r", FromContext(ctx).ResidenceID())
}
