// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

// Open creates a migrated database in t.TempDir and closes it on cleanup.
func Open(t testing.TB) *database.Database {
	t.Helper()
	db, _ := OpenWithPath(t)
	return db
}

// OpenWithPath is Open for callers that also need the database file, such
// as code opening a second connection through database/sql.
func OpenWithPath(t testing.TB) (*database.Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(path, database.WithLogLevel(logger.Silent))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

// Book inserts a book with the given shelf stock and total copies.
func Book(t testing.TB, db *gorm.DB, isbn string, stock, total int) *entities.Book {
	t.Helper()
	book := &entities.Book{
		Title:       "Libro " + isbn,
		ISBN:        isbn,
		Stock:       stock,
		TotalCopies: total,
		Status:      entities.StatusForStock(stock),
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

// User inserts a user with the given role.
func User(t testing.TB, db *gorm.DB, username string, role entities.UserRole) *entities.User {
	t.Helper()
	user := &entities.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}
