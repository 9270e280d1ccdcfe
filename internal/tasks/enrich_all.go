package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/biblioteca/internal/metadata"
)

type BulkEnricher interface {
	EnrichAllMissing(ctx context.Context) (*metadata.BulkEnrichmentResult, error)
}

// EnrichAllBooksTask enriches every book with missing metadata, one lookup
// at a time at the enricher's rate.
type EnrichAllBooksTask struct{}

func (t EnrichAllBooksTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueEnrichAllBooks,
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     time.Hour,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func EnrichAllBooksProcessor(enricher BulkEnricher) backlite.QueueProcessor[EnrichAllBooksTask] {
	return func(ctx context.Context, task EnrichAllBooksTask) error {
		if enricher == nil {
			return errors.New("enricher not configured")
		}

		result, err := enricher.EnrichAllMissing(ctx)
		if errors.Is(err, metadata.ErrEnrichmentRunning) {
			log.Printf("[TASK] Bulk enrichment already running, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("enrich all books: %w", err)
		}

		log.Printf("[TASK] Enrichment complete: %d total, %d enriched, %d no match, %d skipped, %d failed",
			result.TotalBooks, result.Enriched, result.NoMatch, result.Skipped, result.Failed)
		return nil
	}
}

func NewEnrichAllBooksQueue(enricher BulkEnricher) backlite.Queue {
	return backlite.NewQueue(EnrichAllBooksProcessor(enricher))
}
