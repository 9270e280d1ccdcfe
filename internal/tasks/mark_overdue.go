package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// OverdueMarker flags active loans whose due date has passed.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type MarkOverdueLoansTask struct{}

func (t MarkOverdueLoansTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueMarkOverdue,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

func MarkOverdueLoansProcessor(marker OverdueMarker, now func() time.Time) backlite.QueueProcessor[MarkOverdueLoansTask] {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, task MarkOverdueLoansTask) error {
		if marker == nil {
			return errors.New("circulation service not configured")
		}
		n, err := marker.MarkOverdue(ctx, now())
		if err != nil {
			return fmt.Errorf("mark overdue loans: %w", err)
		}
		log.Printf("[TASK] Marked %d loans overdue", n)
		return nil
	}
}

func NewMarkOverdueLoansQueue(marker OverdueMarker) backlite.Queue {
	return backlite.NewQueue(MarkOverdueLoansProcessor(marker, nil))
}
