package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/app/models"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	token, err := v.Issue("alice", models.RoleModerator, time.Hour)
	require.NoError(t, err)

	p, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{ID: "alice", Role: models.RoleModerator}, p)
}

func TestParseRejects(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))

	t.Run("expired", func(t *testing.T) {
		token, err := v.Issue("alice", models.RoleAuthor, -time.Minute)
		require.NoError(t, err)
		_, err = v.Parse(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewVerifier([]byte("other")).Issue("alice", models.RoleAuthor, time.Hour)
		require.NoError(t, err)
		_, err = v.Parse(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("other algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = v.Parse(signed)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestUnknownRoleFallsBackToReader(t *testing.T) {
	v := NewVerifier([]byte("test-secret"))
	token, err := v.Issue("bob", models.Role("superuser"), time.Hour)
	require.NoError(t, err)
	p, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleReader, p.Role)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.True(t, FromContext(ctx).IsAnonymous())

	ctx = WithPrincipal(ctx, models.Principal{ID: "alice", Role: models.RoleAuthor})
	assert.Equal(t, "alice", FromContext(ctx).ID)
}
