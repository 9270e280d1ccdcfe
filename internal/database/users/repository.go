// Package users provides database operations for user accounts.
//
// Credential checks live in the auth package; this repository stores rows.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByUsername("juan_perez")
package users

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var ErrUserExists = errors.New("user already exists")

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a user whose password hash has already been computed.
func (r *Repository) CreateUser(user *entities.User) error {
	var count int64
	err := r.db.Model(&entities.User{}).
		Where("username = ? OR email = ?", user.Username, user.Email).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrUserExists
	}
	if user.Role == "" {
		user.Role = entities.UserRoleMember
	}
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(id uint) (*entities.User, error) {
	var user entities.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(username string) (*entities.User, error) {
	var user entities.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(email string) (*entities.User, error) {
	var user entities.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &user, nil
}

// GetUserByGoogleSubject retrieves the user linked to a Google account.
func (r *Repository) GetUserByGoogleSubject(subject string) (*entities.User, error) {
	var user entities.User
	if err := r.db.Where("google_subject = ?", subject).First(&user).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &user, nil
}

// LinkGoogleSubject stores the Google subject on an existing user.
func (r *Repository) LinkGoogleSubject(userID uint, subject string) error {
	return r.db.Model(&entities.User{}).Where("id = ?", userID).Update("google_subject", subject).Error
}

// List returns one page of users, searching username, email and names.
func (r *Repository) List(opts database.ListOptions) (*database.Page[entities.User], error) {
	opts = opts.Normalized()
	q := r.db.Model(&entities.User{})
	if opts.Search != "" {
		pattern := database.LikePattern(opts.Search)
		q = q.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	if v := opts.Filter("role"); v != "" {
		q = q.Where("role = ?", v)
	}
	q = database.ApplyOrdering(q, opts.Ordering, map[string]string{"username": "username", "id": "id"}, "username ASC")
	return database.Paginate[entities.User](q, opts)
}
