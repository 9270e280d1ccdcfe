package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/authors"
	"github.com/mrlokans/biblioteca/internal/entities"
)

type AuthorsController struct {
	authors AuthorStore
	books   AuthorBooks
	auditor CatalogAuditor
	paging  Paging
}

func NewAuthorsController(store AuthorStore, books AuthorBooks, auditor CatalogAuditor, paging Paging) *AuthorsController {
	return &AuthorsController{authors: store, books: books, auditor: auditor, paging: paging}
}

type authorRequest struct {
	FirstName   *string `json:"nombre"`
	LastName    *string `json:"apellido"`
	BirthDate   *string `json:"fecha_nacimiento"`
	Nationality *string `json:"nacionalidad"`
	Biography   *string `json:"biografia"`
}

func (r *authorRequest) apply(a *entities.Author) error {
	if r.FirstName != nil {
		a.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		a.LastName = *r.LastName
	}
	if r.BirthDate != nil {
		d := strings.TrimSpace(*r.BirthDate)
		if d != "" {
			if err := validDate(d); err != nil || len(d) != len("2006-01-02") {
				return invalid("fecha_nacimiento", errors.New("date must be YYYY-MM-DD"))
			}
		}
		a.BirthDate = d
	}
	if r.Nationality != nil {
		a.Nationality = strings.TrimSpace(*r.Nationality)
	}
	if r.Biography != nil {
		a.Biography = *r.Biography
	}
	return nil
}

// List handles GET /api/autores/
func (ac *AuthorsController) List(c *gin.Context) {
	opts, ok := parseListOptions(c, ac.paging, "nacionalidad")
	if !ok {
		return
	}
	page, err := ac.authors.List(opts)
	if err != nil {
		respondInternalError(c, err, "list authors")
		return
	}
	respondList(c, page, opts)
}

// Get handles GET /api/autores/:id/
func (ac *AuthorsController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	author, err := ac.authors.GetByID(id)
	if err != nil {
		respondAuthorError(c, err, "get author")
		return
	}
	c.JSON(http.StatusOK, author)
}

// Books handles GET /api/autores/:id/libros/
func (ac *AuthorsController) Books(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := ac.authors.GetByID(id); err != nil {
		respondAuthorError(c, err, "get author")
		return
	}
	list, err := ac.books.ListByAuthor(id)
	if err != nil {
		respondInternalError(c, err, "list author books")
		return
	}
	if list == nil {
		list = []entities.Book{}
	}
	c.JSON(http.StatusOK, list)
}

// Create handles POST /api/autores/
func (ac *AuthorsController) Create(c *gin.Context) {
	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	var author entities.Author
	if err := req.apply(&author); err != nil {
		respondAuthorError(c, err, "create author")
		return
	}
	if err := ac.authors.Create(&author); err != nil {
		respondAuthorError(c, err, "create author")
		return
	}
	ac.audit(c, "create", &author)
	respondCreated(c, author)
}

// Update handles PUT and PATCH /api/autores/:id/
func (ac *AuthorsController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	author, err := ac.authors.GetByID(id)
	if err != nil {
		respondAuthorError(c, err, "get author")
		return
	}
	if err := req.apply(author); err != nil {
		respondAuthorError(c, err, "update author")
		return
	}
	if err := ac.authors.Update(author); err != nil {
		respondAuthorError(c, err, "update author")
		return
	}
	ac.audit(c, "update", author)
	c.JSON(http.StatusOK, author)
}

// Delete handles DELETE /api/autores/:id/
func (ac *AuthorsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	author, err := ac.authors.GetByID(id)
	if err != nil {
		respondAuthorError(c, err, "get author")
		return
	}
	if err := ac.authors.Delete(id); err != nil {
		respondAuthorError(c, err, "delete author")
		return
	}
	ac.audit(c, "delete", author)
	c.Status(http.StatusNoContent)
}

func (ac *AuthorsController) audit(c *gin.Context, action string, a *entities.Author) {
	if ac.auditor != nil {
		ac.auditor.LogCatalog(auth.GetUserID(c), action, "author", a.ID, a.FullName())
	}
}

func respondAuthorError(c *gin.Context, err error, context string) {
	var fe *fieldError
	switch {
	case errors.As(err, &fe):
		respondValidation(c, fe.field, fe.Error())
	case errors.Is(err, database.ErrNotFound):
		respondNotFound(c, "author")
	case errors.Is(err, authors.ErrNameRequired):
		respondValidation(c, "nombre", err.Error())
	case errors.Is(err, authors.ErrHasBooks):
		respondConflict(c, err.Error(), "AUTHOR_HAS_BOOKS")
	default:
		respondInternalError(c, err, context)
	}
}
