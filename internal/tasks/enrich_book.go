package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/metadata"
)

// BookEnricher fills missing catalog fields of one book.
type BookEnricher interface {
	EnrichBook(ctx context.Context, bookID uint) (*metadata.EnrichmentResult, error)
}

// EnrichAuditor records the outcome of a queued enrichment.
type EnrichAuditor interface {
	LogMetadataEnrich(userID uint, description string, bookID uint, err error)
}

// EnrichBookTask enriches a single book from Google Books.
type EnrichBookTask struct {
	BookID  uint `json:"book_id"`
	ActorID uint `json:"actor_id,omitempty"`
}

func (t EnrichBookTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueEnrichBook,
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// EnrichBookProcessor returns an error only for lookup failures, which
// backlite retries. A deleted book or a lookup without a match is final.
// auditor may be nil.
func EnrichBookProcessor(enricher BookEnricher, auditor EnrichAuditor) backlite.QueueProcessor[EnrichBookTask] {
	return func(ctx context.Context, task EnrichBookTask) error {
		if enricher == nil {
			return errors.New("enricher not configured")
		}

		result, err := enricher.EnrichBook(ctx, task.BookID)
		if auditor != nil && !errors.Is(err, database.ErrNotFound) {
			auditor.LogMetadataEnrich(task.ActorID, describeEnrichment(result, err), task.BookID, err)
		}
		switch {
		case errors.Is(err, database.ErrNotFound):
			log.Printf("[TASK] Book %d no longer exists, skipping enrichment", task.BookID)
			return nil
		case err != nil:
			return fmt.Errorf("enrich book %d: %w", task.BookID, err)
		case result.NoMatch:
			log.Printf("[TASK] Book %d (%s): no match in Google Books", task.BookID, result.Book.Title)
		case len(result.FieldsUpdated) > 0:
			log.Printf("[TASK] Enriched book %d (%s): updated %v", task.BookID, result.Book.Title, result.FieldsUpdated)
		default:
			log.Printf("[TASK] Book %d (%s): nothing to update", task.BookID, result.Book.Title)
		}
		return nil
	}
}

func NewEnrichBookQueue(enricher BookEnricher, auditor EnrichAuditor) backlite.Queue {
	return backlite.NewQueue(EnrichBookProcessor(enricher, auditor))
}

func describeEnrichment(result *metadata.EnrichmentResult, err error) string {
	switch {
	case err != nil:
		return "enrichment failed"
	case result.NoMatch:
		return "no match in Google Books"
	case len(result.FieldsUpdated) == 0:
		return "nothing to update"
	default:
		return fmt.Sprintf("updated %s", strings.Join(result.FieldsUpdated, ", "))
	}
}
