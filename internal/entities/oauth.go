package entities

import (
	"strings"
	"time"
)

const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// OAuthApplication is a registered client of the token endpoint.
type OAuthApplication struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClientID   string    `gorm:"uniqueIndex;size:100;not null" json:"client_id"`
	SecretHash string    `gorm:"size:100;not null" json:"-"`
	Name       string    `gorm:"size:255" json:"name"`
	Scopes     string    `gorm:"size:255" json:"scopes"` // space separated
	OwnerID    *uint     `gorm:"index" json:"owner_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (OAuthApplication) TableName() string {
	return "oauth_applications"
}

// AllowedScopes returns the scopes this application may request.
func (a *OAuthApplication) AllowedScopes() []string {
	return strings.Fields(a.Scopes)
}

// RefreshToken tracks an issued refresh JWT by its ID so it can be rotated
// and revoked.
type RefreshToken struct {
	ID            uint       `gorm:"primaryKey"`
	JTI           string     `gorm:"uniqueIndex;size:36;not null"`
	UserID        uint       `gorm:"index;not null"`
	ApplicationID *uint      `gorm:"index"`
	Scopes        string     `gorm:"size:255"`
	ExpiresAt     time.Time  `gorm:"index;not null"`
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
