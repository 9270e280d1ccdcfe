package entities

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleLibrarian UserRole = "librarian"
	UserRoleMember    UserRole = "member"
)

// IsStaff reports whether the role may manage the catalog and all loans.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAdmin || r == UserRoleLibrarian
}

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Username         string         `gorm:"uniqueIndex;size:100" json:"username"`
	Email            string         `gorm:"uniqueIndex;size:255" json:"email"`
	FirstName        string         `gorm:"size:100" json:"first_name,omitempty"`
	LastName         string         `gorm:"size:100" json:"last_name,omitempty"`
	PasswordHash     string         `gorm:"size:100" json:"-"`
	Role             UserRole       `gorm:"size:20;not null;default:member" json:"role"`
	TokenHash        string         `gorm:"index;size:64" json:"-"`
	TokenCreatedAt   *time.Time     `json:"-"`
	FailedLoginCount int            `json:"-"`
	LockedUntil      *time.Time     `json:"-"`
	LastLoginAt      *time.Time     `json:"last_login_at,omitempty"`
	GoogleSubject    *string        `gorm:"uniqueIndex;size:255" json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
