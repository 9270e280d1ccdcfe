package audit

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/biblioteca/internal/database/audit"
	"github.com/mrlokans/biblioteca/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Wait blocks until every LogAsync call has been written.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogLoan records a circulation event (checkout, return, cancel).
func (s *Service) LogLoan(actorID uint, action string, loan *entities.Loan, err error) {
	event := &entities.AuditEvent{
		UserID:     actorID,
		EventType:  entities.AuditEventLoan,
		Action:     "loan_" + action,
		EntityType: "loan",
		Status:     entities.AuditStatusSuccess,
	}
	if loan != nil {
		event.EntityID = &loan.ID
		event.Description = action + " " + loan.Reference
		if md, e := json.Marshal(map[string]any{
			"book_id":     loan.BookID,
			"borrower_id": loan.BorrowerID,
			"due_date":    loan.DueDate.Format(time.DateOnly),
		}); e == nil {
			event.Metadata = string(md)
		}
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// LogCatalog records a change to books, authors or categories.
func (s *Service) LogCatalog(actorID uint, action, entityType string, entityID uint, entityName string) {
	event := &entities.AuditEvent{
		UserID:      actorID,
		EventType:   entities.AuditEventCatalog,
		Action:      entityType + "_" + action,
		Description: truncate(action+" "+entityType+": "+entityName, 500),
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      entities.AuditStatusSuccess,
	}

	s.LogAsync(event)
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(userID uint, action string, ipAddr, userAgent string, success bool) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventAuth,
		Action:    action,
		IPAddress: ipAddr,
		UserAgent: truncate(userAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}

	if !success {
		event.Status = entities.AuditStatusFailed
	}

	s.LogAsync(event)
}

// LogMetadataEnrich records a metadata enrichment event.
func (s *Service) LogMetadataEnrich(userID uint, description string, bookID uint, err error) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventMetadataEnrich,
		Action:      "book_enrich",
		Description: truncate(description, 500),
		EntityType:  "book",
		EntityID:    &bookID,
		Status:      entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(q audit.Query) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(q)
}

// DeleteOldEvents removes events older than the retention window.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	return s.repo.DeleteOldEvents(time.Now().Add(-retention))
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
