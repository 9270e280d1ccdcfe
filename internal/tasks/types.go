package tasks

import (
	"errors"
	"fmt"

	"github.com/mikestefanello/backlite"
)

const (
	QueueEnrichBook     = "enrich_book"
	QueueEnrichAllBooks = "enrich_all_books"
	QueueMarkOverdue    = "mark_overdue_loans"
	QueueCleanupAudit   = "cleanup_audit_events"
)

var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrBookIDRequired  = errors.New("book_id is required for enrich_book")
)

// TypeInfo describes a task that can be started by hand.
type TypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

var typeInfos = []TypeInfo{
	{QueueEnrichBook, "Fill missing metadata of one book from Google Books"},
	{QueueEnrichAllBooks, "Fill missing metadata of every book"},
	{QueueMarkOverdue, "Mark active loans past their due date as overdue"},
	{QueueCleanupAudit, "Delete old audit events"},
}

func Types() []TypeInfo {
	return append([]TypeInfo(nil), typeInfos...)
}

// RunParams are the optional inputs of a manually started task.
type RunParams struct {
	BookID        uint `json:"book_id" form:"book_id"`
	RetentionDays int  `json:"retention_days" form:"retention_days"`
	ActorID       uint `json:"-" form:"-"`
}

// NewTask builds the task for a queue name.
func NewTask(taskType string, p RunParams) (backlite.Task, error) {
	switch taskType {
	case QueueEnrichBook:
		if p.BookID == 0 {
			return nil, ErrBookIDRequired
		}
		return EnrichBookTask{BookID: p.BookID, ActorID: p.ActorID}, nil
	case QueueEnrichAllBooks:
		return EnrichAllBooksTask{}, nil
	case QueueMarkOverdue:
		return MarkOverdueLoansTask{}, nil
	case QueueCleanupAudit:
		return CleanupAuditEventsTask{RetentionDays: p.RetentionDays}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
}
