// Package authors provides database operations for authors.
package authors

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var (
	ErrNameRequired = errors.New("first and last name are required")
	ErrHasBooks     = errors.New("author still has books in the catalog")
)

var orderingFields = map[string]string{
	"id":               "id",
	"nombre":           "first_name",
	"apellido":         "last_name",
	"fecha_nacimiento": "birth_date",
	"nacionalidad":     "nationality",
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(author *entities.Author) error {
	if err := validate(author); err != nil {
		return err
	}
	if err := r.db.Create(author).Error; err != nil {
		return fmt.Errorf("create author: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(id uint) (*entities.Author, error) {
	var author entities.Author
	if err := r.db.First(&author, id).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &author, nil
}

// GetByName finds an author by exact first and last name.
func (r *Repository) GetByName(firstName, lastName string) (*entities.Author, error) {
	var author entities.Author
	err := r.db.Where("first_name = ? AND last_name = ?", firstName, lastName).First(&author).Error
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &author, nil
}

// List searches first name, last name and nationality.
func (r *Repository) List(opts database.ListOptions) (*database.Page[entities.Author], error) {
	opts = opts.Normalized()
	q := r.db.Model(&entities.Author{})
	if opts.Search != "" {
		pattern := database.LikePattern(opts.Search)
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(nationality) LIKE ?",
			pattern, pattern, pattern)
	}
	if v := opts.Filter("nacionalidad"); v != "" {
		q = q.Where("nationality = ?", v)
	}
	q = database.ApplyOrdering(q, opts.Ordering, orderingFields, "last_name ASC, first_name ASC")
	return database.Paginate[entities.Author](q, opts)
}

func (r *Repository) Update(author *entities.Author) error {
	if err := validate(author); err != nil {
		return err
	}
	result := r.db.Model(&entities.Author{ID: author.ID}).
		Select("first_name", "last_name", "birth_date", "nationality", "biography").
		Updates(author)
	if result.Error != nil {
		return fmt.Errorf("update author: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Delete removes an author with no books.
func (r *Repository) Delete(id uint) error {
	var count int64
	if err := r.db.Model(&entities.Book{}).Where("author_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrHasBooks
	}
	result := r.db.Delete(&entities.Author{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func validate(a *entities.Author) error {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	if a.FirstName == "" || a.LastName == "" {
		return ErrNameRequired
	}
	return nil
}
