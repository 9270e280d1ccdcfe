package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"
)

const (
	JobOverdueSweep = "overdue_sweep"
	JobAuditCleanup = "audit_cleanup"
	JobDemoReset    = "demo_reset"

	DefaultOverdueSchedule = "0 * * * *"
	DefaultAuditSchedule   = "0 3 * * *"
)

type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type AuditCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// OverdueSweepJob flags active loans past their due date.
func OverdueSweepJob(schedule string, marker OverdueMarker, now func() time.Time) Job {
	if schedule == "" {
		schedule = DefaultOverdueSchedule
	}
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:     JobOverdueSweep,
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := marker.MarkOverdue(ctx, now())
			if err != nil {
				return err
			}
			if n > 0 {
				log.Printf("Scheduler: marked %d loans overdue", n)
			}
			return nil
		},
	}
}

// AuditCleanupJob deletes audit events older than retentionDays.
func AuditCleanupJob(schedule string, cleaner AuditCleaner, retentionDays int) Job {
	if schedule == "" {
		schedule = DefaultAuditSchedule
	}
	return Job{
		Name:     JobAuditCleanup,
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			if retentionDays <= 0 {
				return nil
			}
			n, err := cleaner.DeleteOldEvents(time.Duration(retentionDays) * 24 * time.Hour)
			if err != nil {
				return err
			}
			log.Printf("Scheduler: deleted %d audit events older than %d days", n, retentionDays)
			return nil
		},
	}
}

// DemoResetJob restores the demo data set every interval.
func DemoResetJob(interval time.Duration, reset func(ctx context.Context) error) Job {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return Job{
		Name:     JobDemoReset,
		Schedule: fmt.Sprintf("@every %s", interval),
		Timeout:  2 * time.Minute,
		Run:      reset,
	}
}
