package http

import (
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/database"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ListResponse is the paginated list envelope. Next and Previous are
// absolute URLs, or null on the last and first page.
type ListResponse[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// --- Error Response Helpers ---

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondValidation sends a 400 with a field-level error detail.
func respondValidation(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Code:    "VALIDATION_ERROR",
		Details: map[string]string{field: message},
	})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

func respondForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, ErrorResponse{Error: message})
}

func respondConflict(c *gin.Context, message, code string) {
	c.JSON(http.StatusConflict, ErrorResponse{Error: message, Code: code})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// --- Success Response Helpers ---

func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// respondAccepted sends a 202 Accepted response (for async operations).
func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// respondList writes one page in the list envelope.
func respondList[T any](c *gin.Context, page *database.Page[T], opts database.ListOptions) {
	results := page.Items
	if results == nil {
		results = []T{}
	}
	resp := ListResponse[T]{Count: page.Total, Results: results}
	if int64(opts.Page*opts.PageSize) < page.Total {
		next := pageURL(c, opts.Page+1)
		resp.Next = &next
	}
	if opts.Page > 1 {
		prev := pageURL(c, opts.Page-1)
		resp.Previous = &prev
	}
	c.JSON(http.StatusOK, resp)
}

// pageURL rebuilds the request URL with another page number. The first page
// drops the parameter.
func pageURL(c *gin.Context, page int) string {
	u := url.URL{
		Scheme: requestScheme(c),
		Host:   c.Request.Host,
		Path:   c.Request.URL.Path,
	}
	q := c.Request.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func requestScheme(c *gin.Context) string {
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseQueryID extracts and validates an unsigned integer ID from query parameters.
func parseQueryID(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		respondBadRequest(c, paramName+" is required")
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// Paging holds the page size limits applied to list endpoints.
type Paging struct {
	PageSize    int
	MaxPageSize int
}

// parseListOptions reads page, page_size, search and ordering, plus the
// given filter parameters. A malformed page or page_size yields a 400.
func parseListOptions(c *gin.Context, paging Paging, filters ...string) (database.ListOptions, bool) {
	opts := database.ListOptions{
		Page:     1,
		PageSize: paging.PageSize,
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			respondBadRequest(c, "invalid page")
			return opts, false
		}
		opts.Page = page
	}
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			respondBadRequest(c, "invalid page_size")
			return opts, false
		}
		opts.PageSize = size
	}
	if paging.MaxPageSize > 0 && opts.PageSize > paging.MaxPageSize {
		opts.PageSize = paging.MaxPageSize
	}
	for _, key := range filters {
		if v := c.Query(key); v != "" {
			if opts.Filters == nil {
				opts.Filters = make(map[string]string)
			}
			opts.Filters[key] = v
		}
	}
	return opts.Normalized(), true
}

// --- HTMX Support ---

func isHTMXRequest(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}
