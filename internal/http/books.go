package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/covers"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/books"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/inventory"
	"github.com/mrlokans/biblioteca/internal/metadata"
	"github.com/mrlokans/biblioteca/internal/tasks"
)

// BooksConfig wires the catalog endpoints. Lookup, Enricher, Tasks and
// Covers are optional; their endpoints answer 503 without them.
type BooksConfig struct {
	Books      BookStore
	Authors    AuthorStore
	Categories CategoryStore
	Copies     CopyCounter
	Lookup     MetadataLookup
	Enricher   BookEnricher
	Tasks      TaskQueue
	Covers     CoverSource
	Auditor    CatalogAuditor
	Paging     Paging
}

type BooksController struct {
	cfg BooksConfig
}

func NewBooksController(cfg BooksConfig) *BooksController {
	return &BooksController{cfg: cfg}
}

// bookRequest is the body of create and update. Nil fields are left alone
// on update.
type bookRequest struct {
	Title           *string      `json:"titulo"`
	ISBN            *string      `json:"isbn"`
	AuthorID        *uint        `json:"autor_id"`
	CategoryID      *uint        `json:"categoria_id"`
	Publisher       *string      `json:"editorial"`
	PublicationDate *string      `json:"fecha_publicacion"`
	Pages           *int         `json:"paginas"`
	Language        *string      `json:"idioma"`
	Description     *string      `json:"descripcion"`
	CoverURL        *string      `json:"portada"`
	Price           *json.Number `json:"precio"`
	Rating          *json.Number `json:"valoracion"`
	Stock           *int         `json:"stock"`
	TotalCopies     *int         `json:"total_ejemplares"`
}

// fieldError names the request field a validation failure belongs to.
type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.err.Error() }

func invalid(field string, err error) error {
	return &fieldError{field: field, err: err}
}

// apply copies the catalog fields of req onto book.
func (bc *BooksController) apply(req *bookRequest, book *entities.Book) error {
	if req.Title != nil {
		book.Title = strings.TrimSpace(*req.Title)
	}
	if req.ISBN != nil {
		isbn, err := normalizeISBN(*req.ISBN)
		if err != nil {
			return invalid("isbn", err)
		}
		book.ISBN = isbn
	}
	if req.AuthorID != nil {
		if *req.AuthorID == 0 {
			book.AuthorID = nil
		} else if _, err := bc.cfg.Authors.GetByID(*req.AuthorID); err != nil {
			return invalid("autor_id", errors.New("author does not exist"))
		} else {
			book.AuthorID = req.AuthorID
		}
	}
	if req.CategoryID != nil {
		if *req.CategoryID == 0 {
			book.CategoryID = nil
		} else if _, err := bc.cfg.Categories.GetByID(*req.CategoryID); err != nil {
			return invalid("categoria_id", errors.New("category does not exist"))
		} else {
			book.CategoryID = req.CategoryID
		}
	}
	if req.Publisher != nil {
		book.Publisher = strings.TrimSpace(*req.Publisher)
	}
	if req.PublicationDate != nil {
		d := strings.TrimSpace(*req.PublicationDate)
		if d != "" {
			if err := validDate(d); err != nil {
				return invalid("fecha_publicacion", err)
			}
		}
		book.PublicationDate = d
	}
	if req.Pages != nil {
		if *req.Pages < 0 {
			return invalid("paginas", errors.New("pages cannot be negative"))
		}
		book.Pages = *req.Pages
	}
	if req.Language != nil {
		book.Language = strings.TrimSpace(*req.Language)
	}
	if req.Description != nil {
		book.Description = *req.Description
	}
	if req.CoverURL != nil {
		book.CoverURL = strings.TrimSpace(*req.CoverURL)
	}
	if req.Price != nil {
		price, err := formatDecimal(*req.Price, maxPrice)
		if err != nil {
			return invalid("precio", err)
		}
		book.Price = price
	}
	if req.Rating != nil {
		rating, err := formatDecimal(*req.Rating, maxRating)
		if err != nil {
			return invalid("valoracion", err)
		}
		book.Rating = rating
	}
	return nil
}

// List handles GET /api/libros/
func (bc *BooksController) List(c *gin.Context) {
	opts, ok := parseListOptions(c, bc.cfg.Paging, "autor", "categoria", "estado")
	if !ok {
		return
	}
	page, err := bc.cfg.Books.List(opts)
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}
	respondList(c, page, opts)
}

// Available handles GET /api/libros/disponibles/
func (bc *BooksController) Available(c *gin.Context) {
	opts, ok := parseListOptions(c, bc.cfg.Paging, "autor", "categoria")
	if !ok {
		return
	}
	if opts.Filters == nil {
		opts.Filters = make(map[string]string)
	}
	opts.Filters["estado"] = string(entities.BookStatusAvailable)

	page, err := bc.cfg.Books.List(opts)
	if err != nil {
		respondInternalError(c, err, "list available books")
		return
	}
	respondList(c, page, opts)
}

// Get handles GET /api/libros/:id/
func (bc *BooksController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.cfg.Books.GetBookByID(id)
	if err != nil {
		bc.respondBookError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// Create handles POST /api/libros/
func (bc *BooksController) Create(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		respondValidation(c, "titulo", "title is required")
		return
	}
	if req.ISBN == nil {
		respondValidation(c, "isbn", "isbn is required")
		return
	}

	book := &entities.Book{Stock: 1}
	if req.Stock != nil {
		book.Stock = *req.Stock
	}
	if req.TotalCopies != nil {
		book.TotalCopies = *req.TotalCopies
	}
	if err := bc.apply(&req, book); err != nil {
		bc.respondBookError(c, err, "create book")
		return
	}
	userID := auth.GetUserID(c)
	if userID != 0 {
		book.CreatedByID = &userID
	}

	if err := bc.cfg.Books.Create(book); err != nil {
		bc.respondBookError(c, err, "create book")
		return
	}
	bc.audit(c, "create", book)

	created, err := bc.cfg.Books.GetBookByID(book.ID)
	if err != nil {
		respondInternalError(c, err, "reload book")
		return
	}
	respondCreated(c, created)
}

// Update handles PUT and PATCH /api/libros/:id/. Stock is owned by loans and
// cannot be written; total_ejemplares goes through the inventory ledger.
func (bc *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	book, err := bc.cfg.Books.GetBookByID(id)
	if err != nil {
		bc.respondBookError(c, err, "get book")
		return
	}
	if err := bc.apply(&req, book); err != nil {
		bc.respondBookError(c, err, "update book")
		return
	}
	if err := bc.cfg.Books.Update(book); err != nil {
		bc.respondBookError(c, err, "update book")
		return
	}

	if req.TotalCopies != nil && *req.TotalCopies != book.TotalCopies {
		if _, err := bc.cfg.Copies.SetTotalCopies(c.Request.Context(), id, *req.TotalCopies); err != nil {
			bc.respondBookError(c, err, "set total copies")
			return
		}
	}
	bc.audit(c, "update", book)

	updated, err := bc.cfg.Books.GetBookByID(id)
	if err != nil {
		respondInternalError(c, err, "reload book")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/libros/:id/
func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.cfg.Books.GetBookByID(id)
	if err != nil {
		bc.respondBookError(c, err, "get book")
		return
	}
	if err := bc.cfg.Books.Delete(id); err != nil {
		bc.respondBookError(c, err, "delete book")
		return
	}
	bc.audit(c, "delete", book)
	c.Status(http.StatusNoContent)
}

// LookupISBN handles GET /api/libros/buscar-isbn/?isbn=
func (bc *BooksController) LookupISBN(c *gin.Context) {
	if bc.cfg.Lookup == nil {
		respondError(c, http.StatusServiceUnavailable, "metadata lookup is not configured")
		return
	}
	isbn := c.Query("isbn")
	if metadata.NormalizeIdentifier(isbn) == "" {
		respondValidation(c, "isbn", "isbn is required")
		return
	}

	md, err := bc.cfg.Lookup.Lookup(c.Request.Context(), isbn)
	if err != nil {
		respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

type fromISBNRequest struct {
	ISBN       string       `json:"isbn" binding:"required"`
	Stock      *int         `json:"stock"`
	Price      *json.Number `json:"precio"`
	CategoryID *uint        `json:"categoria_id"`
}

// CreateFromISBN handles POST /api/libros/desde-isbn/. The book is drafted
// from a metadata lookup; its first listed author and category are found or
// created in the catalog.
func (bc *BooksController) CreateFromISBN(c *gin.Context) {
	if bc.cfg.Lookup == nil {
		respondError(c, http.StatusServiceUnavailable, "metadata lookup is not configured")
		return
	}
	var req fromISBNRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "isbn", "isbn is required")
		return
	}
	isbn, err := normalizeISBN(req.ISBN)
	if err != nil {
		respondValidation(c, "isbn", err.Error())
		return
	}
	if _, err := bc.cfg.Books.GetBookByISBN(isbn); err == nil {
		respondConflict(c, books.ErrDuplicateISBN.Error(), "DUPLICATE_ISBN")
		return
	}

	md, err := bc.cfg.Lookup.Lookup(c.Request.Context(), isbn)
	if err != nil {
		respondLookupError(c, err)
		return
	}

	book := metadata.BookFromMetadata(isbn, md)
	book.Stock = 1
	if req.Stock != nil {
		book.Stock = *req.Stock
	}
	extra := bookRequest{Price: req.Price, CategoryID: req.CategoryID}
	if err := bc.apply(&extra, book); err != nil {
		bc.respondBookError(c, err, "create book from isbn")
		return
	}
	if book.Title == "" {
		book.Title = isbn
	}
	if len(md.Authors) > 0 {
		author, err := bc.ensureAuthor(md.Authors[0])
		if err != nil {
			respondInternalError(c, err, "resolve author")
			return
		}
		book.AuthorID = &author.ID
	}
	if book.CategoryID == nil && len(md.Categories) > 0 {
		category, err := bc.ensureCategory(md.Categories[0])
		if err != nil {
			respondInternalError(c, err, "resolve category")
			return
		}
		book.CategoryID = &category.ID
	}
	userID := auth.GetUserID(c)
	if userID != 0 {
		book.CreatedByID = &userID
	}

	if err := bc.cfg.Books.Create(book); err != nil {
		bc.respondBookError(c, err, "create book from isbn")
		return
	}
	bc.audit(c, "create_from_isbn", book)

	created, err := bc.cfg.Books.GetBookByID(book.ID)
	if err != nil {
		respondInternalError(c, err, "reload book")
		return
	}
	respondCreated(c, created)
}

// ensureAuthor splits a display name at its last space into first and last
// name. Single-word names are stored as the last name.
func (bc *BooksController) ensureAuthor(name string) (*entities.Author, error) {
	name = strings.Join(strings.Fields(name), " ")
	first, last := "", name
	if i := strings.LastIndex(name, " "); i > 0 {
		first, last = name[:i], name[i+1:]
	}
	if first == "" {
		first = last
	}
	if author, err := bc.cfg.Authors.GetByName(first, last); err == nil {
		return author, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	author := &entities.Author{FirstName: first, LastName: last}
	if err := bc.cfg.Authors.Create(author); err != nil {
		return nil, err
	}
	return author, nil
}

func (bc *BooksController) ensureCategory(name string) (*entities.Category, error) {
	name = strings.TrimSpace(name)
	if category, err := bc.cfg.Categories.GetByName(name); err == nil {
		return category, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	category := &entities.Category{Name: name}
	if err := bc.cfg.Categories.Create(category); err != nil {
		return nil, err
	}
	return category, nil
}

// Enrich handles POST /api/libros/:id/enriquecer/. With ?async=true and a
// task queue configured the work is queued and 202 returned.
func (bc *BooksController) Enrich(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := bc.cfg.Books.GetBookByID(id); err != nil {
		bc.respondBookError(c, err, "get book")
		return
	}

	if c.Query("async") == "true" && bc.cfg.Tasks != nil {
		taskID, err := bc.cfg.Tasks.Enqueue(tasks.EnrichBookTask{BookID: id, ActorID: auth.GetUserID(c)})
		if err != nil {
			respondInternalError(c, err, "enqueue enrichment")
			return
		}
		respondAccepted(c, "enrichment queued", gin.H{"task_id": taskID, "type": tasks.QueueEnrichBook})
		return
	}
	if bc.cfg.Enricher == nil {
		respondError(c, http.StatusServiceUnavailable, "metadata enrichment is not configured")
		return
	}

	result, err := bc.cfg.Enricher.EnrichBook(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, metadata.ErrLookupFailed) || errors.Is(err, metadata.ErrTimeout) {
			log.Printf("[METADATA] enrichment of book %d failed: %v", id, err)
			respondError(c, http.StatusBadGateway, metadata.ErrLookupFailed.Error())
			return
		}
		bc.respondBookError(c, err, "enrich book")
		return
	}
	if result.FieldsUpdated == nil {
		result.FieldsUpdated = []string{}
	}
	c.JSON(http.StatusOK, result)
}

// Cover handles GET /api/libros/:id/portada/. When the image cannot be
// cached the client is redirected to the original URL.
func (bc *BooksController) Cover(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.cfg.Books.GetBookByID(id)
	if err != nil {
		bc.respondBookError(c, err, "get book")
		return
	}
	if book.CoverURL == "" {
		respondNotFound(c, "cover")
		return
	}
	if bc.cfg.Covers == nil {
		c.Redirect(http.StatusTemporaryRedirect, book.CoverURL)
		return
	}

	path, err := bc.cfg.Covers.GetCover(c.Request.Context(), id, book.CoverURL)
	if err != nil {
		if errors.Is(err, covers.ErrNoCover) {
			respondNotFound(c, "cover")
			return
		}
		log.Printf("[COVERS] book %d: %v", id, err)
		c.Redirect(http.StatusTemporaryRedirect, book.CoverURL)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

func (bc *BooksController) audit(c *gin.Context, action string, book *entities.Book) {
	if bc.cfg.Auditor != nil {
		bc.cfg.Auditor.LogCatalog(auth.GetUserID(c), action, "book", book.ID, book.Title)
	}
}

// respondBookError maps catalog and ledger errors to responses.
func (bc *BooksController) respondBookError(c *gin.Context, err error, context string) {
	var fe *fieldError
	switch {
	case errors.As(err, &fe):
		respondValidation(c, fe.field, fe.Error())
	case errors.Is(err, database.ErrNotFound):
		respondNotFound(c, "book")
	case errors.Is(err, books.ErrDuplicateISBN):
		respondConflict(c, err.Error(), "DUPLICATE_ISBN")
	case errors.Is(err, books.ErrBookOnLoan):
		respondConflict(c, err.Error(), "BOOK_ON_LOAN")
	case errors.Is(err, books.ErrTitleRequired):
		respondValidation(c, "titulo", err.Error())
	case errors.Is(err, books.ErrISBNRequired):
		respondValidation(c, "isbn", err.Error())
	case errors.Is(err, books.ErrInvalidStock):
		respondValidation(c, "stock", err.Error())
	case errors.Is(err, inventory.ErrCopiesOnLoan), errors.Is(err, inventory.ErrInvalidTotal):
		respondValidation(c, "total_ejemplares", err.Error())
	case errors.Is(err, inventory.ErrBookNotFound):
		respondNotFound(c, "book")
	default:
		respondInternalError(c, err, context)
	}
}

// respondLookupError maps metadata client outcomes: no match is 404, any
// failure 502.
func respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, metadata.ErrEmptyIdentifier):
		respondValidation(c, "isbn", "isbn is required")
	case errors.Is(err, metadata.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no match", Code: "NO_MATCH"})
	default:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: metadata.ErrLookupFailed.Error(), Code: "LOOKUP_FAILED"})
	}
}
