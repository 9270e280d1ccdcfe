package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditsvc "github.com/mrlokans/biblioteca/internal/audit"
	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/audit"
	"github.com/mrlokans/biblioteca/internal/database/authors"
	"github.com/mrlokans/biblioteca/internal/database/books"
	"github.com/mrlokans/biblioteca/internal/database/categories"
	"github.com/mrlokans/biblioteca/internal/database/dbtest"
	"github.com/mrlokans/biblioteca/internal/database/loans"
	"github.com/mrlokans/biblioteca/internal/database/reports"
	"github.com/mrlokans/biblioteca/internal/demo"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/inventory"
)

func setupRouterTest(t *testing.T, demoMode bool) (*database.Database, *auditsvc.Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	auditRepo := audit.NewRepository(db.DB)
	auditor := auditsvc.NewService(auditRepo)
	ledger := inventory.NewLedger()
	reportRepo, err := reports.FromGorm(db.DB)
	require.NoError(t, err)
	bookRepo := books.NewRepository(db.DB)

	router, stop := NewRouter(RouterConfig{
		Database:       db,
		Version:        "test",
		Paging:         Paging{PageSize: 10, MaxPageSize: 100},
		Books:          bookRepo,
		Authors:        authors.NewRepository(db.DB),
		AuthorBooks:    bookRepo,
		Categories:     categories.NewRepository(db.DB),
		Copies:         inventory.NewStore(db.DB, ledger),
		Loans:          loans.NewRepository(db.DB),
		Circulation:    circulation.NewService(db.DB, ledger, circulation.WithAuditRecorder(auditor)),
		Reports:        reportRepo,
		Auditor:        auditor,
		AuditLog:       auditRepo,
		DemoMiddleware: demo.NewMiddleware(demoMode),
	})
	t.Cleanup(stop)
	return db, auditor, router
}

func TestRouter_CatalogAndCirculation(t *testing.T) {
	db, auditor, router := setupRouterTest(t, false)
	member := dbtest.User(t, db.DB, "socia", entities.UserRoleMember)

	w := doJSON(router, http.MethodPost, "/api/libros/", `{"titulo":"La casa de los espíritus","isbn":"9788401242267"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	book := decode[entities.Book](t, w)

	w = doJSON(router, http.MethodPost, "/api/prestamos/", fmt.Sprintf(`{"libro_id":%d,"usuario_id":%d}`, book.ID, member.ID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[entities.Loan](t, w)

	w = doJSON(router, http.MethodGet, "/api/libros/disponibles/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode[ListResponse[entities.Book]](t, w).Count)

	w = doJSON(router, http.MethodGet, "/api/estadisticas/", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[reports.Summary](t, w)
	assert.Equal(t, int64(1), summary.Loans.Active)
	assert.Equal(t, int64(1), summary.Stock.OnLoan)

	w = doJSON(router, http.MethodPost, fmt.Sprintf("/api/prestamos/%d/devolver/", loan.ID), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	auditor.Wait()
	w = doJSON(router, http.MethodGet, "/api/auditoria/?entidad=loan", "")
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[map[string]any](t, w)
	assert.Equal(t, float64(2), events["total_events"])
}

func TestRouter_PublicEndpoints(t *testing.T) {
	_, _, router := setupRouterTest(t, false)

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/health", "").Code)

	w := doJSON(router, http.MethodGet, "/api/demo/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[DemoStatusResponse](t, w).Enabled)

	// no task queue configured
	assert.Equal(t, http.StatusNotFound, doJSON(router, http.MethodGet, "/api/tasks/types", "").Code)
}

func TestRouter_DemoModeBlocksWrites(t *testing.T) {
	_, _, router := setupRouterTest(t, true)

	w := doJSON(router, http.MethodPost, "/api/categorias/", `{"nombre":"Ensayo"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "DEMO_MODE")

	w = doJSON(router, http.MethodGet, "/api/categorias/", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/demo/status", "")
	assert.True(t, decode[DemoStatusResponse](t, w).Enabled)
}
