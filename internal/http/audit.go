package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/database/audit"
	"github.com/mrlokans/biblioteca/internal/entities"
)

const auditPageSize = 25

// AuditLog reads recorded audit events.
type AuditLog interface {
	GetEvents(q audit.Query) ([]entities.AuditEvent, int64, error)
}

type AuditController struct {
	log AuditLog
}

func NewAuditController(log AuditLog) *AuditController {
	return &AuditController{log: log}
}

// ListEvents handles GET /api/auditoria/. Filters: tipo, usuario, entidad.
func (ac *AuditController) ListEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	q := audit.Query{
		EventType:  entities.AuditEventType(c.Query("tipo")),
		EntityType: c.Query("entidad"),
		Limit:      auditPageSize,
		Offset:     (page - 1) * auditPageSize,
	}
	if raw := c.Query("usuario"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid usuario")
			return
		}
		q.UserID = uint(id)
	}

	events, total, err := ac.log.GetEvents(q)
	if err != nil {
		respondInternalError(c, err, "audit events")
		return
	}
	if events == nil {
		events = []entities.AuditEvent{}
	}

	totalPages := (int(total) + auditPageSize - 1) / auditPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"events":       events,
		"page":         page,
		"total_pages":  totalPages,
		"total_events": total,
	})
}
