package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/mrlokans/biblioteca/internal/entities"
)

const SourceGoogleBooks = "googlebooks"

var ErrEnrichmentRunning = errors.New("metadata enrichment is already in progress")

// MetadataProvider defines the interface for fetching book metadata.
type MetadataProvider interface {
	Lookup(ctx context.Context, identifier string) (*BookMetadata, error)
}

// BookUpdater defines the interface for updating books in the database.
type BookUpdater interface {
	GetBookByID(id uint) (*entities.Book, error)
	UpdateBookMetadata(id uint, fields map[string]any) error
	GetBooksMissingMetadata() ([]entities.Book, error)
}

// CoverInvalidator defines the interface for invalidating cached covers.
type CoverInvalidator interface {
	InvalidateCover(bookID uint) error
}

// BookUpdateFields contains the fields that can be updated via enrichment.
type BookUpdateFields struct {
	Publisher       *string
	PublicationDate *string
	Pages           *int
	Language        *string
	Description     *string
	CoverURL        *string
}

// Columns maps the set fields to book table columns.
func (f BookUpdateFields) Columns() map[string]any {
	cols := make(map[string]any)
	if f.Publisher != nil {
		cols["publisher"] = *f.Publisher
	}
	if f.PublicationDate != nil {
		cols["publication_date"] = *f.PublicationDate
	}
	if f.Pages != nil {
		cols["pages"] = *f.Pages
	}
	if f.Language != nil {
		cols["language"] = *f.Language
	}
	if f.Description != nil {
		cols["description"] = *f.Description
	}
	if f.CoverURL != nil {
		cols["cover_url"] = *f.CoverURL
	}
	return cols
}

// EnrichmentResult contains the result of an enrichment operation.
type EnrichmentResult struct {
	Book          *entities.Book `json:"book"`
	FieldsUpdated []string       `json:"fields_updated"`
	Source        string         `json:"source"`
	NoMatch       bool           `json:"no_match"`
}

// Enricher fills empty catalog fields of stored books from a metadata lookup.
type Enricher struct {
	provider         MetadataProvider
	db               BookUpdater
	coverInvalidator CoverInvalidator
	limiter          *rate.Limiter
	running          atomic.Bool
}

// NewEnricher creates a new Enricher. Bulk runs issue at most one lookup
// per second until SetRateLimit says otherwise.
func NewEnricher(provider MetadataProvider, db BookUpdater) *Enricher {
	return &Enricher{
		provider: provider,
		db:       db,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
	}
}

// SetCoverInvalidator sets the cover cache invalidator (optional).
func (e *Enricher) SetCoverInvalidator(invalidator CoverInvalidator) {
	e.coverInvalidator = invalidator
}

// SetRateLimit sets the bulk lookup rate. Zero or less disables throttling.
func (e *Enricher) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		e.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// EnrichBook looks the book up by its ISBN and writes the fields it is
// missing. A lookup with no match yields NoMatch rather than an error;
// ErrLookupFailed is returned wrapped.
func (e *Enricher) EnrichBook(ctx context.Context, bookID uint) (*EnrichmentResult, error) {
	book, err := e.db.GetBookByID(bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	md, err := e.provider.Lookup(ctx, book.ISBN)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmptyIdentifier) {
		return &EnrichmentResult{Book: book, Source: SourceGoogleBooks, NoMatch: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", book.ISBN, err)
	}

	updates, fieldsUpdated := e.buildUpdates(book, md)
	if len(fieldsUpdated) > 0 {
		if updates.CoverURL != nil && e.coverInvalidator != nil {
			_ = e.coverInvalidator.InvalidateCover(bookID)
		}

		if err := e.db.UpdateBookMetadata(bookID, updates.Columns()); err != nil {
			return nil, fmt.Errorf("update book metadata: %w", err)
		}

		book, err = e.db.GetBookByID(bookID)
		if err != nil {
			return nil, fmt.Errorf("refresh book: %w", err)
		}
	}

	return &EnrichmentResult{
		Book:          book,
		FieldsUpdated: fieldsUpdated,
		Source:        SourceGoogleBooks,
	}, nil
}

// BulkEnrichmentResult contains the summary of a bulk enrichment operation.
type BulkEnrichmentResult struct {
	TotalBooks int      `json:"total_books"`
	Enriched   int      `json:"enriched"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	NoMatch    int      `json:"no_match"`
	Errors     []string `json:"errors,omitempty"`
}

// EnrichAllMissing enriches every book with at least one empty enrichable
// field. Only one bulk run may be active at a time.
func (e *Enricher) EnrichAllMissing(ctx context.Context) (*BulkEnrichmentResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrEnrichmentRunning
	}
	defer e.running.Store(false)

	books, err := e.db.GetBooksMissingMetadata()
	if err != nil {
		return nil, fmt.Errorf("get books missing metadata: %w", err)
	}

	result := &BulkEnrichmentResult{
		TotalBooks: len(books),
	}

	for _, book := range books {
		if err := e.limiter.Wait(ctx); err != nil {
			result.Errors = append(result.Errors, "operation cancelled")
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			return result, err
		}

		enrichResult, err := e.EnrichBook(ctx, book.ID)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", book.Title, err))
		case enrichResult.NoMatch:
			result.NoMatch++
		case len(enrichResult.FieldsUpdated) > 0:
			result.Enriched++
		default:
			result.Skipped++
		}
	}

	return result, nil
}

// IsRunning reports whether a bulk run is in progress.
func (e *Enricher) IsRunning() bool {
	return e.running.Load()
}

// buildUpdates returns only the fields the book is missing and the lookup
// can supply. Existing catalog data is never overwritten.
func (e *Enricher) buildUpdates(book *entities.Book, md *BookMetadata) (BookUpdateFields, []string) {
	var updates BookUpdateFields
	var fieldsUpdated []string

	if book.Publisher == "" && md.Publisher != "" {
		updates.Publisher = &md.Publisher
		fieldsUpdated = append(fieldsUpdated, "editorial")
	}

	if book.PublicationDate == "" && md.PublishedDate != "" {
		updates.PublicationDate = &md.PublishedDate
		fieldsUpdated = append(fieldsUpdated, "fecha_publicacion")
	}

	if book.Pages == 0 && md.PageCount > 0 {
		updates.Pages = &md.PageCount
		fieldsUpdated = append(fieldsUpdated, "paginas")
	}

	if book.Language == "" && md.Language != "" {
		updates.Language = &md.Language
		fieldsUpdated = append(fieldsUpdated, "idioma")
	}

	if book.Description == "" && md.Description != "" {
		if text := PlainText(md.Description); text != "" {
			updates.Description = &text
			fieldsUpdated = append(fieldsUpdated, "descripcion")
		}
	}

	if book.CoverURL == "" && md.CoverURL != "" {
		cover := SecureURL(md.CoverURL)
		updates.CoverURL = &cover
		fieldsUpdated = append(fieldsUpdated, "portada")
	}

	return updates, fieldsUpdated
}

// BookFromMetadata drafts a new catalog entry from a lookup. Author and
// category are resolved by the caller.
func BookFromMetadata(isbn string, md *BookMetadata) *entities.Book {
	title := md.Title
	if md.Subtitle != "" {
		title += ": " + md.Subtitle
	}
	return &entities.Book{
		Title:           title,
		ISBN:            NormalizeIdentifier(isbn),
		Publisher:       md.Publisher,
		PublicationDate: md.PublishedDate,
		Pages:           md.PageCount,
		Language:        md.Language,
		Description:     PlainText(md.Description),
		CoverURL:        SecureURL(md.CoverURL),
	}
}

// PlainText reduces an HTML fragment to its text, keeping paragraph and
// line breaks.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").AppendHtml("\n\n")

	lines := strings.Split(doc.Text(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text := strings.Join(lines, "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

// SecureURL upgrades Google's http thumbnail links to https.
func SecureURL(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
