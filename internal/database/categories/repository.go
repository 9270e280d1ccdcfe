// Package categories provides database operations for book categories.
package categories

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var (
	ErrNameRequired = errors.New("name is required")
	ErrDuplicate    = errors.New("a category with this name already exists")
	ErrHasBooks     = errors.New("category still has books in the catalog")
)

var orderingFields = map[string]string{
	"id":     "id",
	"nombre": "name",
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(category *entities.Category) error {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return ErrNameRequired
	}
	if _, err := r.GetByName(category.Name); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if err := r.db.Create(category).Error; err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(id uint) (*entities.Category, error) {
	var category entities.Category
	if err := r.db.First(&category, id).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &category, nil
}

func (r *Repository) GetByName(name string) (*entities.Category, error) {
	var category entities.Category
	if err := r.db.Where("name = ?", name).First(&category).Error; err != nil {
		return nil, database.NotFound(err)
	}
	return &category, nil
}

func (r *Repository) List(opts database.ListOptions) (*database.Page[entities.Category], error) {
	opts = opts.Normalized()
	q := r.db.Model(&entities.Category{})
	if opts.Search != "" {
		pattern := database.LikePattern(opts.Search)
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	q = database.ApplyOrdering(q, opts.Ordering, orderingFields, "name ASC")
	return database.Paginate[entities.Category](q, opts)
}

func (r *Repository) Update(category *entities.Category) error {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return ErrNameRequired
	}
	if existing, err := r.GetByName(category.Name); err == nil && existing.ID != category.ID {
		return ErrDuplicate
	}
	result := r.db.Model(&entities.Category{ID: category.ID}).
		Select("name", "description").
		Updates(category)
	if result.Error != nil {
		return fmt.Errorf("update category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(id uint) error {
	var count int64
	if err := r.db.Model(&entities.Book{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrHasBooks
	}
	result := r.db.Delete(&entities.Category{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}
