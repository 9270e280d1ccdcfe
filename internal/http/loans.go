package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/reports"
	"github.com/mrlokans/biblioteca/internal/entities"
)

// LoansController serves /api/prestamos/. Members see and return only their
// own loans; staff see all of them and may lend on behalf of any member.
type LoansController struct {
	loans       LoanStore
	circulation Circulation
	reports     ReportSource
	paging      Paging
	now         func() time.Time
}

func NewLoansController(loans LoanStore, circ Circulation, reports ReportSource, paging Paging) *LoansController {
	return &LoansController{
		loans:       loans,
		circulation: circ,
		reports:     reports,
		paging:      paging,
		now:         time.Now,
	}
}

type checkOutRequest struct {
	BookID     uint   `json:"libro_id"`
	BorrowerID uint   `json:"usuario_id"`
	DueDate    string `json:"fecha_devolucion_esperada"`
}

// OverdueLoanResponse is one row of the overdue report.
type OverdueLoanResponse struct {
	reports.OverdueLoan
	BorrowerName string `json:"nombre_usuario"`
}

// List handles GET /api/prestamos/
func (lc *LoansController) List(c *gin.Context) {
	opts, ok := parseListOptions(c, lc.paging, "usuario", "libro", "estado")
	if !ok {
		return
	}
	if !auth.IsStaff(c) {
		if opts.Filters == nil {
			opts.Filters = make(map[string]string)
		}
		opts.Filters["usuario"] = strconv.FormatUint(uint64(auth.GetUserID(c)), 10)
	}
	page, err := lc.loans.List(opts)
	if err != nil {
		respondInternalError(c, err, "list loans")
		return
	}
	respondList(c, page, opts)
}

// Get handles GET /api/prestamos/:id/
func (lc *LoansController) Get(c *gin.Context) {
	loan, ok := lc.visibleLoan(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, loan)
}

// Create handles POST /api/prestamos/. The borrower defaults to the caller.
func (lc *LoansController) Create(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.BookID == 0 {
		respondValidation(c, "libro_id", "libro_id is required")
		return
	}

	actorID := auth.GetUserID(c)
	borrowerID := req.BorrowerID
	if borrowerID == 0 {
		borrowerID = actorID
	}
	if borrowerID == 0 {
		respondValidation(c, "usuario_id", "usuario_id is required")
		return
	}
	if borrowerID != actorID && !auth.IsStaff(c) {
		respondForbidden(c, "members can only borrow books for themselves")
		return
	}

	var due *time.Time
	if req.DueDate != "" {
		d, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			respondValidation(c, "fecha_devolucion_esperada", "date must be YYYY-MM-DD")
			return
		}
		due = &d
	}

	loan, err := lc.circulation.CheckOut(c.Request.Context(), circulation.CheckOutRequest{
		BookID:     req.BookID,
		BorrowerID: borrowerID,
		DueDate:    due,
		ActorID:    actorID,
	})
	if err != nil {
		respondLoanError(c, err, "check out")
		return
	}
	respondCreated(c, loan)
}

// Return handles POST /api/prestamos/:id/devolver/
func (lc *LoansController) Return(c *gin.Context) {
	loan, ok := lc.visibleLoan(c)
	if !ok {
		return
	}
	returned, err := lc.circulation.Return(c.Request.Context(), loan.ID, auth.GetUserID(c))
	if err != nil {
		respondLoanError(c, err, "return loan")
		return
	}
	c.JSON(http.StatusOK, returned)
}

// Cancel handles DELETE /api/prestamos/:id/. Staff only.
func (lc *LoansController) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := lc.circulation.Cancel(c.Request.Context(), id, auth.GetUserID(c)); err != nil {
		respondLoanError(c, err, "cancel loan")
		return
	}
	c.Status(http.StatusNoContent)
}

// Overdue handles GET /api/prestamos/vencidos/. Staff only.
func (lc *LoansController) Overdue(c *gin.Context) {
	rows, err := lc.reports.OverdueLoans(c.Request.Context(), lc.now())
	if err != nil {
		respondInternalError(c, err, "overdue loans")
		return
	}
	out := make([]OverdueLoanResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, OverdueLoanResponse{OverdueLoan: row, BorrowerName: row.BorrowerName()})
	}
	c.JSON(http.StatusOK, out)
}

// visibleLoan loads the :id loan. Loans of other borrowers are reported as
// missing to members.
func (lc *LoansController) visibleLoan(c *gin.Context) (*entities.Loan, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	loan, err := lc.loans.GetByID(id)
	if err != nil {
		respondLoanError(c, err, "get loan")
		return nil, false
	}
	if !auth.IsStaff(c) && loan.BorrowerID != auth.GetUserID(c) {
		respondNotFound(c, "loan")
		return nil, false
	}
	return loan, true
}

func respondLoanError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, circulation.ErrBookUnavailable):
		respondConflict(c, circulation.ErrBookUnavailable.Error(), "BOOK_UNAVAILABLE")
	case errors.Is(err, circulation.ErrDuplicateLoan):
		respondConflict(c, err.Error(), "DUPLICATE_LOAN")
	case errors.Is(err, circulation.ErrLoanClosed):
		respondConflict(c, err.Error(), "LOAN_CLOSED")
	case errors.Is(err, circulation.ErrLoanNotFound), errors.Is(err, database.ErrNotFound):
		respondNotFound(c, "loan")
	case errors.Is(err, circulation.ErrBookNotFound):
		respondValidation(c, "libro_id", err.Error())
	case errors.Is(err, circulation.ErrBorrowerNotFound):
		respondValidation(c, "usuario_id", err.Error())
	case errors.Is(err, circulation.ErrDueDateInPast):
		respondValidation(c, "fecha_devolucion_esperada", err.Error())
	default:
		respondInternalError(c, err, context)
	}
}
