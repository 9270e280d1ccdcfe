package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/dbtest"
	"github.com/mrlokans/biblioteca/internal/entities"
)

func TestRepository_Applications(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB)

	app := &entities.OAuthApplication{ClientID: "biblioteca-cli", SecretHash: "hash", Name: "CLI", Scopes: "read write"}
	require.NoError(t, repo.CreateApplication(app))
	assert.ErrorIs(t, repo.CreateApplication(&entities.OAuthApplication{ClientID: "biblioteca-cli", SecretHash: "x"}), ErrClientExists)

	got, err := repo.GetApplication("biblioteca-cli")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, got.AllowedScopes())

	_, err = repo.GetApplication("unknown")
	assert.ErrorIs(t, err, database.ErrNotFound)

	apps, err := repo.ListApplications()
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestRepository_RefreshTokenRotation(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db.DB)
	user := dbtest.User(t, db.DB, "juan_perez", entities.UserRoleMember)

	now := time.Now()
	require.NoError(t, repo.SaveRefreshToken(&entities.RefreshToken{JTI: "jti-1", UserID: user.ID, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.SaveRefreshToken(&entities.RefreshToken{JTI: "jti-2", UserID: user.ID, ExpiresAt: now.Add(-time.Hour)}))

	ok, err := repo.RevokeRefreshToken("jti-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RevokeRefreshToken("jti-1", now)
	require.NoError(t, err)
	assert.False(t, ok, "revocation is single-use")

	token, err := repo.GetRefreshToken("jti-1")
	require.NoError(t, err)
	assert.False(t, token.Usable(now))

	n, err := repo.RevokeAllForUser(user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteExpiredRefreshTokens(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
