package http

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/dbtest"
	"github.com/mrlokans/biblioteca/internal/database/loans"
	"github.com/mrlokans/biblioteca/internal/database/reports"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/inventory"
)

type loansFixture struct {
	db      *database.Database
	circ    *circulation.Service
	ctrl    *LoansController
	staff   *entities.User
	ana     *entities.User
	bruno   *entities.User
	started time.Time
}

func setupLoansTest(t *testing.T) *loansFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	started := time.Now().AddDate(0, 0, -30)
	circ := circulation.NewService(db.DB, inventory.NewLedger(), circulation.WithClock(func() time.Time { return started }))
	reportRepo, err := reports.FromGorm(db.DB)
	require.NoError(t, err)

	return &loansFixture{
		db:      db,
		circ:    circ,
		ctrl:    NewLoansController(loans.NewRepository(db.DB), circ, reportRepo, Paging{PageSize: 10, MaxPageSize: 100}),
		staff:   dbtest.User(t, db.DB, "bibliotecaria", entities.UserRoleLibrarian),
		ana:     dbtest.User(t, db.DB, "ana", entities.UserRoleMember),
		bruno:   dbtest.User(t, db.DB, "bruno", entities.UserRoleMember),
		started: started,
	}
}

func (f *loansFixture) routerFor(user *entities.User) *gin.Engine {
	router := gin.New()
	router.Use(asUser(user.ID, user.Role))
	router.GET("/api/prestamos/", f.ctrl.List)
	router.POST("/api/prestamos/", f.ctrl.Create)
	router.GET("/api/prestamos/vencidos/", f.ctrl.Overdue)
	router.GET("/api/prestamos/:id/", f.ctrl.Get)
	router.POST("/api/prestamos/:id/devolver/", f.ctrl.Return)
	router.DELETE("/api/prestamos/:id/", f.ctrl.Cancel)
	return router
}

func (f *loansFixture) lend(t *testing.T, book *entities.Book, borrower *entities.User) *entities.Loan {
	t.Helper()
	loan, err := f.circ.CheckOut(context.Background(), circulation.CheckOutRequest{BookID: book.ID, BorrowerID: borrower.ID})
	require.NoError(t, err)
	return loan
}

func TestLoansController_Create(t *testing.T) {
	t.Run("member borrows for themselves", func(t *testing.T) {
		f := setupLoansTest(t)
		book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)

		w := doJSON(f.routerFor(f.ana), http.MethodPost, "/api/prestamos/", fmt.Sprintf(`{"libro_id":%d}`, book.ID))

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		loan := decode[entities.Loan](t, w)
		assert.Equal(t, f.ana.ID, loan.BorrowerID)
		assert.Equal(t, entities.LoanStatusActive, loan.Status)
		assert.NotEmpty(t, loan.Reference)

		var stored entities.Book
		require.NoError(t, f.db.DB.First(&stored, book.ID).Error)
		assert.Equal(t, 0, stored.Stock)
		assert.Equal(t, entities.BookStatusUnavailable, stored.Status)
	})

	t.Run("unavailable book is a conflict", func(t *testing.T) {
		f := setupLoansTest(t)
		book := dbtest.Book(t, f.db.DB, "9788437604947", 0, 1)

		w := doJSON(f.routerFor(f.ana), http.MethodPost, "/api/prestamos/", fmt.Sprintf(`{"libro_id":%d}`, book.ID))

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decode[ErrorResponse](t, w)
		assert.Equal(t, "BOOK_UNAVAILABLE", resp.Code)
		assert.Equal(t, "book currently unavailable", resp.Error)

		var count int64
		require.NoError(t, f.db.DB.Model(&entities.Loan{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("member cannot borrow for someone else", func(t *testing.T) {
		f := setupLoansTest(t)
		book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)

		w := doJSON(f.routerFor(f.ana), http.MethodPost, "/api/prestamos/",
			fmt.Sprintf(`{"libro_id":%d,"usuario_id":%d}`, book.ID, f.bruno.ID))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("staff lends on behalf of a member", func(t *testing.T) {
		f := setupLoansTest(t)
		book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)

		w := doJSON(f.routerFor(f.staff), http.MethodPost, "/api/prestamos/",
			fmt.Sprintf(`{"libro_id":%d,"usuario_id":%d}`, book.ID, f.bruno.ID))

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, f.bruno.ID, decode[entities.Loan](t, w).BorrowerID)
	})

	t.Run("validates input", func(t *testing.T) {
		f := setupLoansTest(t)
		book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)
		router := f.routerFor(f.ana)

		tests := []struct {
			body  string
			field string
		}{
			{`{}`, "libro_id"},
			{`{"libro_id":999}`, "libro_id"},
			{fmt.Sprintf(`{"libro_id":%d,"fecha_devolucion_esperada":"31/12/2030"}`, book.ID), "fecha_devolucion_esperada"},
			{fmt.Sprintf(`{"libro_id":%d,"fecha_devolucion_esperada":"2001-01-01"}`, book.ID), "fecha_devolucion_esperada"},
		}
		for _, tt := range tests {
			w := doJSON(router, http.MethodPost, "/api/prestamos/", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, tt.body)
			assert.Contains(t, decode[map[string]any](t, w)["details"], tt.field, tt.body)
		}
	})

	t.Run("second open loan of the same book is a conflict", func(t *testing.T) {
		f := setupLoansTest(t)
		book := dbtest.Book(t, f.db.DB, "9788437604947", 2, 2)
		f.lend(t, book, f.ana)

		w := doJSON(f.routerFor(f.ana), http.MethodPost, "/api/prestamos/", fmt.Sprintf(`{"libro_id":%d}`, book.ID))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "DUPLICATE_LOAN", decode[ErrorResponse](t, w).Code)
	})
}

func TestLoansController_Visibility(t *testing.T) {
	f := setupLoansTest(t)
	book := dbtest.Book(t, f.db.DB, "9788437604947", 2, 2)
	anaLoan := f.lend(t, book, f.ana)
	brunoLoan := f.lend(t, book, f.bruno)

	t.Run("member lists only own loans", func(t *testing.T) {
		w := doJSON(f.routerFor(f.ana), http.MethodGet, fmt.Sprintf("/api/prestamos/?usuario=%d", f.bruno.ID), "")

		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[ListResponse[entities.Loan]](t, w)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, anaLoan.ID, resp.Results[0].ID)
	})

	t.Run("staff lists all loans", func(t *testing.T) {
		w := doJSON(f.routerFor(f.staff), http.MethodGet, "/api/prestamos/", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(2), decode[ListResponse[entities.Loan]](t, w).Count)
	})

	t.Run("member cannot see another loan", func(t *testing.T) {
		w := doJSON(f.routerFor(f.ana), http.MethodGet, fmt.Sprintf("/api/prestamos/%d/", brunoLoan.ID), "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(f.routerFor(f.ana), http.MethodPost, fmt.Sprintf("/api/prestamos/%d/devolver/", brunoLoan.ID), "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestLoansController_Return(t *testing.T) {
	f := setupLoansTest(t)
	book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)
	loan := f.lend(t, book, f.ana)
	router := f.routerFor(f.ana)

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/api/prestamos/%d/devolver/", loan.ID), "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	returned := decode[entities.Loan](t, w)
	assert.Equal(t, entities.LoanStatusReturned, returned.Status)
	assert.NotNil(t, returned.ReturnedAt)

	var stored entities.Book
	require.NoError(t, f.db.DB.First(&stored, book.ID).Error)
	assert.Equal(t, 1, stored.Stock)
	assert.Equal(t, entities.BookStatusAvailable, stored.Status)

	w = doJSON(router, http.MethodPost, fmt.Sprintf("/api/prestamos/%d/devolver/", loan.ID), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LOAN_CLOSED", decode[ErrorResponse](t, w).Code)
}

func TestLoansController_Cancel(t *testing.T) {
	f := setupLoansTest(t)
	book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)
	loan := f.lend(t, book, f.ana)
	router := f.routerFor(f.staff)

	w := doJSON(router, http.MethodDelete, fmt.Sprintf("/api/prestamos/%d/", loan.ID), "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	var stored entities.Book
	require.NoError(t, f.db.DB.First(&stored, book.ID).Error)
	assert.Equal(t, 1, stored.Stock)

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/api/prestamos/%d/", loan.ID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoansController_Overdue(t *testing.T) {
	f := setupLoansTest(t)
	book := dbtest.Book(t, f.db.DB, "9788437604947", 1, 1)
	loan := f.lend(t, book, f.ana)

	w := doJSON(f.routerFor(f.staff), http.MethodGet, "/api/prestamos/vencidos/", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rows := decode[[]map[string]any](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(loan.ID), rows[0]["prestamo_id"])
	assert.Equal(t, "ana", rows[0]["nombre_usuario"])
	assert.Greater(t, rows[0]["dias_retraso"], float64(0))
}
