package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/audit"
	"github.com/mrlokans/biblioteca/internal/entities"
)

const homeBooks = 12

type UIController struct {
	books   BookStore
	reports ReportSource
	audit   AuditLog
	now     func() time.Time
}

func NewUIController(books BookStore, reports ReportSource, auditLog AuditLog) *UIController {
	return &UIController{
		books:   books,
		reports: reports,
		audit:   auditLog,
		now:     time.Now,
	}
}

func (u *UIController) pageData(c *gin.Context, data gin.H) gin.H {
	data["Auth"] = GetAuthTemplateData(c)
	data["DemoMode"] = isDemoMode(c)
	return data
}

// HomePage renders the catalog landing page with a search box.
func (u *UIController) HomePage(c *gin.Context) {
	opts := database.ListOptions{
		PageSize: homeBooks,
		Search:   c.Query("q"),
	}.Normalized()
	page, err := u.books.List(opts)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading books")
		return
	}

	c.HTML(http.StatusOK, "home", u.pageData(c, gin.H{
		"Title": "Catálogo",
		"Books": page.Items,
		"Total": page.Total,
		"Query": opts.Search,
	}))
}

// AdminPage renders the staff dashboard: circulation figures and the most
// recent audit events.
func (u *UIController) AdminPage(c *gin.Context) {
	summary, err := u.reports.Summary(c.Request.Context(), u.now())
	if err != nil {
		c.String(http.StatusInternalServerError, "Error loading statistics")
		return
	}

	var events []entities.AuditEvent
	if u.audit != nil {
		events, _, err = u.audit.GetEvents(audit.Query{Limit: 20})
		if err != nil {
			c.String(http.StatusInternalServerError, "Error loading audit events")
			return
		}
	}

	c.HTML(http.StatusOK, "admin", u.pageData(c, gin.H{
		"Title":   "Administración",
		"Summary": summary,
		"Events":  events,
	}))
}
