package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/database/reports"
)

type ReportsController struct {
	reports ReportSource
	now     func() time.Time
}

func NewReportsController(reports ReportSource) *ReportsController {
	return &ReportsController{reports: reports, now: time.Now}
}

// Summary handles GET /api/estadisticas/
func (rc *ReportsController) Summary(c *gin.Context) {
	summary, err := rc.reports.Summary(c.Request.Context(), rc.now())
	if err != nil {
		respondInternalError(c, err, "report summary")
		return
	}
	if summary.TopBorrowed == nil {
		summary.TopBorrowed = []reports.BorrowedBook{}
	}
	if summary.Overdue == nil {
		summary.Overdue = []reports.OverdueLoan{}
	}
	c.JSON(http.StatusOK, summary)
}
