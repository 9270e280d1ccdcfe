package http

import (
	"context"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/reports"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/metadata"
)

// Each controller depends on the narrow interface it uses; the concrete
// repositories and services are checked against them in internal/interfaces.

// --- Catalog ---

type BookStore interface {
	Create(book *entities.Book) error
	GetBookByID(id uint) (*entities.Book, error)
	GetBookByISBN(isbn string) (*entities.Book, error)
	List(opts database.ListOptions) (*database.Page[entities.Book], error)
	Update(book *entities.Book) error
	Delete(id uint) error
}

type AuthorStore interface {
	Create(author *entities.Author) error
	GetByID(id uint) (*entities.Author, error)
	GetByName(firstName, lastName string) (*entities.Author, error)
	List(opts database.ListOptions) (*database.Page[entities.Author], error)
	Update(author *entities.Author) error
	Delete(id uint) error
}

// AuthorBooks lists the catalog entries of one author.
type AuthorBooks interface {
	ListByAuthor(authorID uint) ([]entities.Book, error)
}

type CategoryStore interface {
	Create(category *entities.Category) error
	GetByID(id uint) (*entities.Category, error)
	GetByName(name string) (*entities.Category, error)
	List(opts database.ListOptions) (*database.Page[entities.Category], error)
	Update(category *entities.Category) error
	Delete(id uint) error
}

// CopyCounter changes the number of copies the library owns.
type CopyCounter interface {
	SetTotalCopies(ctx context.Context, bookID uint, total int) (*entities.Book, error)
}

// CatalogAuditor records catalog changes.
type CatalogAuditor interface {
	LogCatalog(actorID uint, action, entityType string, entityID uint, entityName string)
}

// --- Metadata ---

type MetadataLookup interface {
	Lookup(ctx context.Context, identifier string) (*metadata.BookMetadata, error)
}

type BookEnricher interface {
	EnrichBook(ctx context.Context, bookID uint) (*metadata.EnrichmentResult, error)
}

// CoverSource resolves a book cover to a local file.
type CoverSource interface {
	GetCover(ctx context.Context, bookID uint, url string) (string, error)
}

// --- Circulation ---

type LoanStore interface {
	GetByID(id uint) (*entities.Loan, error)
	List(opts database.ListOptions) (*database.Page[entities.Loan], error)
}

type Circulation interface {
	CheckOut(ctx context.Context, req circulation.CheckOutRequest) (*entities.Loan, error)
	Return(ctx context.Context, loanID, actorID uint) (*entities.Loan, error)
	Cancel(ctx context.Context, loanID, actorID uint) error
}

type ReportSource interface {
	Summary(ctx context.Context, now time.Time) (*reports.Summary, error)
	OverdueLoans(ctx context.Context, now time.Time) ([]reports.OverdueLoan, error)
}

// --- Background work ---

// TaskQueue enqueues background tasks and reports their status.
type TaskQueue interface {
	Enqueue(task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (string, error)
}
