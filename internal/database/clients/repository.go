// Package clients stores OAuth applications and the refresh tokens issued to
// them.
package clients

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var ErrClientExists = errors.New("oauth application already exists")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateApplication(app *entities.OAuthApplication) error {
	if _, err := r.GetApplication(app.ClientID); err == nil {
		return ErrClientExists
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if err := r.db.Create(app).Error; err != nil {
		return fmt.Errorf("create oauth application: %w", err)
	}
	return nil
}

// GetApplication looks an application up by its public client id.
func (r *Repository) GetApplication(clientID string) (*entities.OAuthApplication, error) {
	var app entities.OAuthApplication
	if err := r.db.Where("client_id = ?", clientID).First(&app).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &app, nil
}

func (r *Repository) GetApplicationByID(id uint) (*entities.OAuthApplication, error) {
	var app entities.OAuthApplication
	if err := r.db.First(&app, id).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &app, nil
}

func (r *Repository) ListApplications() ([]entities.OAuthApplication, error) {
	var apps []entities.OAuthApplication
	err := r.db.Order("name ASC").Find(&apps).Error
	return apps, err
}

func (r *Repository) SaveRefreshToken(token *entities.RefreshToken) error {
	return r.db.Create(token).Error
}

func (r *Repository) GetRefreshToken(jti string) (*entities.RefreshToken, error) {
	var token entities.RefreshToken
	if err := r.db.Where("jti = ?", jti).First(&token).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &token, nil
}

// RevokeRefreshToken marks a token revoked. It reports false when the token
// was unknown or already revoked, which makes rotation single-use.
func (r *Repository) RevokeRefreshToken(jti string, at time.Time) (bool, error) {
	result := r.db.Model(&entities.RefreshToken{}).
		Where("jti = ? AND revoked_at IS NULL", jti).
		Update("revoked_at", at)
	return result.RowsAffected == 1, result.Error
}

// RevokeAllForUser revokes every live refresh token of a user.
func (r *Repository) RevokeAllForUser(userID uint, at time.Time) (int64, error) {
	result := r.db.Model(&entities.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	return result.RowsAffected, result.Error
}

// DeleteExpiredRefreshTokens removes tokens that expired before cutoff.
func (r *Repository) DeleteExpiredRefreshTokens(cutoff time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", cutoff).Delete(&entities.RefreshToken{})
	return result.RowsAffected, result.Error
}
