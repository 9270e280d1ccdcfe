package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/categories"
	"github.com/mrlokans/biblioteca/internal/entities"
)

type CategoriesController struct {
	categories CategoryStore
	auditor    CatalogAuditor
	paging     Paging
}

func NewCategoriesController(store CategoryStore, auditor CatalogAuditor, paging Paging) *CategoriesController {
	return &CategoriesController{categories: store, auditor: auditor, paging: paging}
}

type categoryRequest struct {
	Name        *string `json:"nombre"`
	Description *string `json:"descripcion"`
}

func (cc *CategoriesController) List(c *gin.Context) {
	opts, ok := parseListOptions(c, cc.paging)
	if !ok {
		return
	}
	page, err := cc.categories.List(opts)
	if err != nil {
		respondInternalError(c, err, "list categories")
		return
	}
	respondList(c, page, opts)
}

func (cc *CategoriesController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	category, err := cc.categories.GetByID(id)
	if err != nil {
		respondCategoryError(c, err, "get category")
		return
	}
	c.JSON(http.StatusOK, category)
}

func (cc *CategoriesController) Create(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	var category entities.Category
	if req.Name != nil {
		category.Name = *req.Name
	}
	if req.Description != nil {
		category.Description = *req.Description
	}
	if err := cc.categories.Create(&category); err != nil {
		respondCategoryError(c, err, "create category")
		return
	}
	cc.audit(c, "create", &category)
	respondCreated(c, category)
}

func (cc *CategoriesController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	category, err := cc.categories.GetByID(id)
	if err != nil {
		respondCategoryError(c, err, "get category")
		return
	}
	if req.Name != nil {
		category.Name = *req.Name
	}
	if req.Description != nil {
		category.Description = *req.Description
	}
	if err := cc.categories.Update(category); err != nil {
		respondCategoryError(c, err, "update category")
		return
	}
	cc.audit(c, "update", category)
	c.JSON(http.StatusOK, category)
}

func (cc *CategoriesController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	category, err := cc.categories.GetByID(id)
	if err != nil {
		respondCategoryError(c, err, "get category")
		return
	}
	if err := cc.categories.Delete(id); err != nil {
		respondCategoryError(c, err, "delete category")
		return
	}
	cc.audit(c, "delete", category)
	c.Status(http.StatusNoContent)
}

func (cc *CategoriesController) audit(c *gin.Context, action string, category *entities.Category) {
	if cc.auditor != nil {
		cc.auditor.LogCatalog(auth.GetUserID(c), action, "category", category.ID, category.Name)
	}
}

func respondCategoryError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondNotFound(c, "category")
	case errors.Is(err, categories.ErrNameRequired):
		respondValidation(c, "nombre", err.Error())
	case errors.Is(err, categories.ErrDuplicate):
		respondConflict(c, err.Error(), "DUPLICATE_CATEGORY")
	case errors.Is(err, categories.ErrHasBooks):
		respondConflict(c, err.Error(), "CATEGORY_HAS_BOOKS")
	default:
		respondInternalError(c, err, context)
	}
}
