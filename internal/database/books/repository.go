// Package books provides database operations for the catalog.
//
// Stock and status columns are written only by inventory.Ledger; Create seeds
// them once and Update leaves them alone.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	page, err := repo.List(database.ListOptions{Search: "márquez"})
package books

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var (
	ErrDuplicateISBN = errors.New("a book with this ISBN already exists")
	ErrBookOnLoan    = errors.New("book has copies on loan")
	ErrISBNRequired  = errors.New("isbn is required")
	ErrTitleRequired = errors.New("title is required")
	ErrInvalidStock  = errors.New("stock must be between 0 and total copies")
)

var orderingFields = map[string]string{
	"id":                "books.id",
	"titulo":            "books.title",
	"fecha_publicacion": "books.publication_date",
	"valoracion":        "CAST(books.rating AS REAL)",
	"precio":            "CAST(books.price AS REAL)",
	"stock":             "books.stock",
	"paginas":           "books.pages",
	"created_at":        "books.created_at",
}

// catalogColumns are the columns Update may write.
var catalogColumns = []string{
	"title", "isbn", "author_id", "category_id", "publisher", "publication_date",
	"pages", "language", "description", "cover_url", "price", "rating",
}

// Repository handles catalog database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a book. TotalCopies defaults to Stock, and Status is derived
// from Stock.
func (r *Repository) Create(book *entities.Book) error {
	book.Title = strings.TrimSpace(book.Title)
	if book.Title == "" {
		return ErrTitleRequired
	}
	if book.ISBN == "" {
		return ErrISBNRequired
	}
	if book.TotalCopies == 0 {
		book.TotalCopies = book.Stock
	}
	if book.Stock < 0 || book.Stock > book.TotalCopies {
		return ErrInvalidStock
	}
	book.Status = entities.StatusForStock(book.Stock)

	if _, err := r.GetBookByISBN(book.ISBN); err == nil {
		return ErrDuplicateISBN
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	if err := r.db.Create(book).Error; err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// GetBookByID retrieves a book with its author and category.
func (r *Repository) GetBookByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Preload("Author").Preload("Category").First(&book, id).Error
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &book, nil
}

// GetBookByISBN retrieves a book by its normalized ISBN.
func (r *Repository) GetBookByISBN(isbn string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Preload("Author").Preload("Category").Where("isbn = ?", isbn).First(&book).Error
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &book, nil
}

// List returns one page of books. Search matches title, ISBN and author name;
// filters "autor", "categoria" and "estado" narrow the result.
func (r *Repository) List(opts database.ListOptions) (*database.Page[entities.Book], error) {
	opts = opts.Normalized()

	q := r.db.Model(&entities.Book{}).
		Joins("LEFT JOIN authors ON authors.id = books.author_id").
		Preload("Author").Preload("Category")

	if opts.Search != "" {
		pattern := database.LikePattern(opts.Search)
		q = q.Where(
			"LOWER(books.title) LIKE ? OR books.isbn LIKE ? OR LOWER(authors.first_name || ' ' || authors.last_name) LIKE ?",
			pattern, pattern, pattern,
		)
	}
	if v := opts.Filter("autor"); v != "" {
		q = q.Where("books.author_id = ?", v)
	}
	if v := opts.Filter("categoria"); v != "" {
		q = q.Where("books.category_id = ?", v)
	}
	if v := opts.Filter("estado"); v != "" {
		q = q.Where("books.status = ?", v)
	}

	q = database.ApplyOrdering(q, opts.Ordering, orderingFields, "books.title ASC")
	return database.Paginate[entities.Book](q, opts)
}

// Update writes the catalog fields of book. Stock, total copies and status are
// not touched.
func (r *Repository) Update(book *entities.Book) error {
	if strings.TrimSpace(book.Title) == "" {
		return ErrTitleRequired
	}
	if book.ISBN == "" {
		return ErrISBNRequired
	}
	existing, err := r.GetBookByISBN(book.ISBN)
	if err == nil && existing.ID != book.ID {
		return ErrDuplicateISBN
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	result := r.db.Model(&entities.Book{ID: book.ID}).Select(catalogColumns).Omit(clause.Associations).Updates(book)
	if result.Error != nil {
		return fmt.Errorf("update book: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Delete removes a book that has no open loans. Returned loans go with it.
func (r *Repository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var open int64
		err := tx.Model(&entities.Loan{}).
			Where("book_id = ? AND status IN ?", id, []entities.LoanStatus{entities.LoanStatusActive, entities.LoanStatusOverdue}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrBookOnLoan
		}
		if err := tx.Where("book_id = ?", id).Delete(&entities.Loan{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&entities.Book{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return database.ErrNotFound
		}
		return nil
	})
}

// UpdateBookMetadata writes enrichment results. Keys are column names.
func (r *Repository) UpdateBookMetadata(id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&entities.Book{}).Where("id = ?", id).Updates(fields).Error
}

// GetBooksMissingMetadata returns books with at least one empty enrichable field.
func (r *Repository) GetBooksMissingMetadata() ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.Where(
		"publisher = '' OR publisher IS NULL OR pages = 0 OR pages IS NULL OR language = '' OR language IS NULL " +
			"OR description = '' OR description IS NULL OR cover_url = '' OR cover_url IS NULL " +
			"OR publication_date = '' OR publication_date IS NULL",
	).Order("id ASC").Find(&books).Error
	return books, err
}

// ListByAuthor returns every book by one author, ordered by title.
func (r *Repository) ListByAuthor(authorID uint) ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.Preload("Category").Where("author_id = ?", authorID).Order("title ASC").Find(&books).Error
	return books, err
}
