package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8000), cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, AuthModeLocal, cfg.Auth.Mode)
	assert.Equal(t, time.Hour, cfg.JWT.AccessLifetime)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshLifetime)
	assert.Equal(t, []string{"read", "write"}, cfg.OAuth2.DefaultScopes)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, DefaultGoogleBooksURL, cfg.GoogleBooks.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.GoogleBooks.Timeout)
	assert.Equal(t, "US", cfg.GoogleBooks.Country)
	assert.Equal(t, 14, cfg.Loans.DefaultDays)
	assert.Equal(t, "0 * * * *", cfg.Loans.OverdueSchedule)
	assert.Equal(t, 10, cfg.Pagination.PageSize)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GOOGLE_BOOKS_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com , ")
	t.Setenv("AUTH_MODE", "none")

	cfg := NewConfig()

	assert.Equal(t, int32(9090), cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.GoogleBooks.Timeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, AuthModeNone, cfg.Auth.Mode)
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "read", []string{"read"}},
		{"spaces and blanks", " read , ,write ", []string{"read", "write"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitList(tt.in))
		})
	}
}
