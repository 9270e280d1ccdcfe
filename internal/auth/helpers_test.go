package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/database/clients"
	"github.com/mrlokans/biblioteca/internal/database/dbtest"
	"github.com/mrlokans/biblioteca/internal/entities"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)

func testAuthConfig() config.Auth {
	return config.Auth{
		Mode:             config.AuthModeLocal,
		SessionLifetime:  24 * time.Hour,
		BcryptCost:       4,
		MaxLoginAttempts: 3,
		RateLimitWindow:  15 * time.Minute,
		LockoutDuration:  30 * time.Minute,
	}
}

type authFixture struct {
	db      *gorm.DB
	service *Service
	issuer  *TokenIssuer
	clients *clients.Repository
}

func newFixture(t *testing.T) *authFixture {
	t.Helper()
	db := dbtest.Open(t).DB
	service := NewService(db, testAuthConfig())
	repo := clients.NewRepository(db)
	issuer, err := NewTokenIssuer(config.JWT{Secret: "test-jwt-secret", Issuer: "biblioteca"}, repo, service)
	require.NoError(t, err)
	return &authFixture{db: db, service: service, issuer: issuer, clients: repo}
}

func (f *authFixture) user(t *testing.T, username, password string, role entities.UserRole) *entities.User {
	t.Helper()
	user, err := f.service.CreateUser(NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

// app registers an OAuth application and returns it with its plaintext secret.
func (f *authFixture) app(t *testing.T, clientID, scopes string) (*entities.OAuthApplication, string) {
	t.Helper()
	secret, err := GenerateClientSecret()
	require.NoError(t, err)
	hash, err := HashPassword(secret, 4)
	require.NoError(t, err)
	app := &entities.OAuthApplication{ClientID: clientID, SecretHash: hash, Name: clientID, Scopes: scopes}
	require.NoError(t, f.clients.CreateApplication(app))
	return app, secret
}

func (f *authFixture) sessionManager(t *testing.T) *SessionManager {
	t.Helper()
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	sm, err := NewSessionManager(sqlDB, testAuthConfig())
	require.NoError(t, err)
	return sm
}

// sessionCookie extracts the session cookie set by a response.
func sessionCookie(t *testing.T, header http.Header) *http.Cookie {
	t.Helper()
	resp := http.Response{Header: header}
	for _, c := range resp.Cookies() {
		if c.Name == "biblioteca_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in %v", header.Values("Set-Cookie"))
	return nil
}
