package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/users"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameStrip   = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = users.ErrUserExists
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters: letters, digits, dot, underscore or hyphen")
	ErrEmailInvalid     = errors.New("invalid email format")
	ErrEmailNotVerified = errors.New("google account email is not verified")
)

// NewUser carries the fields needed to register an account.
type NewUser struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      entities.UserRole
}

// GoogleProfile is the subset of a Google account used to sign in.
type GoogleProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
}

// Service handles authentication and user management.
type Service struct {
	db     *gorm.DB
	users  *users.Repository
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(db *gorm.DB, cfg config.Auth) *Service {
	return &Service{
		db:     db,
		users:  users.NewRepository(db),
		config: cfg,
		now:    time.Now,
	}
}

func validRole(role entities.UserRole) bool {
	switch role {
	case entities.UserRoleAdmin, entities.UserRoleLibrarian, entities.UserRoleMember:
		return true
	}
	return false
}

// CreateUser registers an account after applying the password policy.
func (s *Service) CreateUser(nu NewUser) (*entities.User, error) {
	if nu.Username == "" {
		return nil, ErrUsernameRequired
	}
	if nu.Email == "" {
		return nil, ErrEmailRequired
	}
	if nu.Password == "" {
		return nil, ErrPasswordRequired
	}
	if !usernamePattern.MatchString(nu.Username) {
		return nil, ErrUsernameInvalid
	}
	// RFC 5321 caps addresses at 254 characters
	if len(nu.Email) > 254 || !emailPattern.MatchString(nu.Email) {
		return nil, ErrEmailInvalid
	}
	if nu.Role == "" {
		nu.Role = entities.UserRoleMember
	}
	if !validRole(nu.Role) {
		return nil, ErrInvalidRole
	}
	if err := ValidatePassword(nu.Password); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(nu.Password, s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		Username:     nu.Username,
		Email:        nu.Email,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		PasswordHash: passwordHash,
		Role:         nu.Role,
	}
	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate validates credentials against username or email and locks the
// account after MaxLoginAttempts consecutive failures.
func (s *Service) Authenticate(login, password string) (*entities.User, error) {
	var user entities.User
	err := s.db.Where("username = ? OR email = ?", login, login).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.recordFailedLogin(&user, now)
		return nil, err
	}

	s.db.Model(&user).Updates(map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	})
	return &user, nil
}

func (s *Service) recordFailedLogin(user *entities.User, now time.Time) {
	user.FailedLoginCount++
	updates := map[string]any{
		"failed_login_count": user.FailedLoginCount,
	}

	maxAttempts := s.config.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if user.FailedLoginCount >= maxAttempts {
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = 30 * time.Minute
		}
		updates["locked_until"] = now.Add(lockout)
	}

	s.db.Model(user).Updates(updates)
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(id uint) (*entities.User, error) {
	user, err := s.users.GetUserByID(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ValidateToken checks a static API token and returns its owner.
func (s *Service) ValidateToken(token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var user entities.User
	err := s.db.Where("token_hash = ?", HashToken(token)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if s.config.TokenExpiry > 0 && user.TokenCreatedAt != nil {
		if s.now().Sub(*user.TokenCreatedAt) > s.config.TokenExpiry {
			return nil, ErrTokenExpired
		}
	}
	return &user, nil
}

// GenerateToken creates a static API token. Only its hash is stored, so the
// plaintext must be shown to the user once.
func (s *Service) GenerateToken(userID uint) (string, error) {
	plaintext, hash, err := GenerateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	result := s.db.Model(&entities.User{}).Where("id = ?", userID).Updates(map[string]any{
		"token_hash":       hash,
		"token_created_at": s.now(),
	})
	if result.Error != nil {
		return "", fmt.Errorf("failed to save token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrUserNotFound
	}
	return plaintext, nil
}

// RevokeToken removes a user's static API token.
func (s *Service) RevokeToken(userID uint) error {
	err := s.db.Model(&entities.User{}).Where("id = ?", userID).Updates(map[string]any{
		"token_hash":       "",
		"token_created_at": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ChangePassword updates a user's password after checking the old one.
func (s *Service) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	return s.db.Model(user).Update("password_hash", newHash).Error
}

// FindOrCreateGoogleUser resolves a Google account to a local user. The
// subject wins; a verified email links an existing account; otherwise a new
// member is created without a usable password.
func (s *Service) FindOrCreateGoogleUser(profile GoogleProfile) (*entities.User, error) {
	if profile.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetUserByGoogleSubject(profile.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if !profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	user, err = s.users.GetUserByEmail(profile.Email)
	switch {
	case err == nil:
		if err := s.users.LinkGoogleSubject(user.ID, profile.Subject); err != nil {
			return nil, fmt.Errorf("link google account: %w", err)
		}
		subject := profile.Subject
		user.GoogleSubject = &subject
		return user, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	username, err := s.availableUsername(profile.Email)
	if err != nil {
		return nil, err
	}
	subject := profile.Subject
	user = &entities.User{
		Username:      username,
		Email:         profile.Email,
		FirstName:     profile.GivenName,
		LastName:      profile.FamilyName,
		Role:          entities.UserRoleMember,
		GoogleSubject: &subject,
	}
	if err := s.users.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// availableUsername derives a username from the local part of an email,
// appending a counter until it is unused.
func (s *Service) availableUsername(email string) (string, error) {
	base, _, _ := strings.Cut(email, "@")
	base = usernameStrip.ReplaceAllString(base, "")
	for len(base) < 3 {
		base += "_"
	}
	if len(base) > 60 {
		base = base[:60]
	}

	candidate := base
	for i := 2; i < 1000; i++ {
		_, err := s.users.GetUserByUsername(candidate)
		if errors.Is(err, database.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", ErrUserExists
}

// HasUsers returns true if any users exist in the database.
func (s *Service) HasUsers() (bool, error) {
	count, err := s.GetUserCount()
	return count > 0, err
}

// GetUserCount returns the number of users in the database.
func (s *Service) GetUserCount() (int64, error) {
	var count int64
	err := s.db.Model(&entities.User{}).Count(&count).Error
	return count, err
}

// IsAuthEnabled returns true if authentication is required.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode == config.AuthModeLocal
}

// GetAuthMode returns the current authentication mode.
func (s *Service) GetAuthMode() config.AuthMode {
	return s.config.Mode
}
