// Package loans provides database operations for loan records.
//
// State transitions that touch stock are performed by the circulation
// service inside a transaction; it builds a Repository over the transaction
// handle with NewRepository(tx).
package loans

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
)

var openStatuses = []entities.LoanStatus{entities.LoanStatusActive, entities.LoanStatusOverdue}

var orderingFields = map[string]string{
	"id":                        "loans.id",
	"fecha_prestamo":            "loans.loaned_at",
	"fecha_devolucion_esperada": "loans.due_date",
	"estado":                    "loans.status",
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(loan *entities.Loan) error {
	if err := r.db.Omit("Book", "Borrower").Create(loan).Error; err != nil {
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

// GetByID loads a loan with its book and borrower.
func (r *Repository) GetByID(id uint) (*entities.Loan, error) {
	var loan entities.Loan
	err := r.db.Preload("Book").Preload("Borrower").First(&loan, id).Error
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &loan, nil
}

func (r *Repository) GetByReference(ref string) (*entities.Loan, error) {
	var loan entities.Loan
	err := r.db.Preload("Book").Preload("Borrower").Where("reference = ?", ref).First(&loan).Error
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &loan, nil
}

// HasOpenLoan reports whether the borrower already holds a copy of the book.
func (r *Repository) HasOpenLoan(bookID, borrowerID uint) (bool, error) {
	var count int64
	err := r.db.Model(&entities.Loan{}).
		Where("book_id = ? AND borrower_id = ? AND status IN ?", bookID, borrowerID, openStatuses).
		Count(&count).Error
	return count > 0, err
}

// Close moves an open loan to returned. It reports false when the loan was
// not open.
func (r *Repository) Close(id uint, returnedAt time.Time) (bool, error) {
	result := r.db.Model(&entities.Loan{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(map[string]any{
			"status":      entities.LoanStatusReturned,
			"returned_at": returnedAt,
		})
	return result.RowsAffected == 1, result.Error
}

// DeleteOpen removes a loan that is still open. It reports false when the
// loan was already closed.
func (r *Repository) DeleteOpen(id uint) (bool, error) {
	result := r.db.Where("id = ? AND status IN ?", id, openStatuses).Delete(&entities.Loan{})
	return result.RowsAffected == 1, result.Error
}

// MarkOverdue flags active loans whose due date is before cutoff.
func (r *Repository) MarkOverdue(cutoff time.Time) (int64, error) {
	result := r.db.Model(&entities.Loan{}).
		Where("status = ? AND due_date < ?", entities.LoanStatusActive, cutoff).
		Update("status", entities.LoanStatusOverdue)
	return result.RowsAffected, result.Error
}

// List returns one page of loans. Filters: "usuario", "libro", "estado".
// Search matches book title and borrower username.
func (r *Repository) List(opts database.ListOptions) (*database.Page[entities.Loan], error) {
	opts = opts.Normalized()
	q := r.db.Model(&entities.Loan{}).
		Joins("JOIN books ON books.id = loans.book_id").
		Joins("JOIN users ON users.id = loans.borrower_id").
		Preload("Book").Preload("Borrower")

	if opts.Search != "" {
		pattern := database.LikePattern(opts.Search)
		q = q.Where("LOWER(books.title) LIKE ? OR LOWER(users.username) LIKE ?", pattern, pattern)
	}
	if v := opts.Filter("usuario"); v != "" {
		q = q.Where("loans.borrower_id = ?", v)
	}
	if v := opts.Filter("libro"); v != "" {
		q = q.Where("loans.book_id = ?", v)
	}
	if v := opts.Filter("estado"); v != "" {
		q = q.Where("loans.status = ?", v)
	}
	q = database.ApplyOrdering(q, opts.Ordering, orderingFields, "loans.loaned_at DESC")
	return database.Paginate[entities.Loan](q, opts)
}

// ListOpen returns every loan that still holds a copy.
func (r *Repository) ListOpen() ([]entities.Loan, error) {
	var loans []entities.Loan
	err := r.db.Where("status IN ?", openStatuses).Order("due_date ASC").Find(&loans).Error
	return loans, err
}
