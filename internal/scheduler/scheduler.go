package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobBusy    = errors.New("job is already running")
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named piece of periodic work.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on their cron schedules. A job never overlaps with
// itself: a tick that fires while the previous run is busy is skipped.
type Scheduler struct {
	jobs map[string]Job

	cron      *cron.Cron
	entries   map[string]cron.EntryID
	busy      map[string]bool
	mu        sync.RWMutex
	isRunning bool
	wg        sync.WaitGroup
}

func New(jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{
		jobs:    make(map[string]Job, len(jobs)),
		entries: make(map[string]cron.EntryID, len(jobs)),
		busy:    make(map[string]bool, len(jobs)),
		cron:    cron.New(cron.WithParser(parser)),
	}
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("job %q is incomplete", job.Name)
		}
		if err := ValidateSchedule(job.Schedule); err != nil {
			return nil, fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.Schedule, job.Name, err)
		}
		s.jobs[job.Name] = job
	}
	return s, nil
}

// Start registers every job and starts the cron loop. Cancelling ctx stops
// the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	for name, job := range s.jobs {
		name := name
		id, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, name) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		s.entries[name] = id
		log.Printf("Scheduler: %s scheduled '%s' (%s)", name, job.Schedule, Describe(job.Schedule))
	}

	s.cron.Start()
	s.isRunning = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops accepting ticks and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Printf("Scheduler: stopped")
}

// RunNow triggers a job immediately in the background.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.IsBusy(name) {
		return ErrJobBusy
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.WithoutCancel(ctx), name)
	}()
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsBusy reports whether a run of the job is in progress.
func (s *Scheduler) IsBusy(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy[name]
}

// NextRun returns when the job fires next, or nil when not scheduled.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	t := s.cron.Entry(id).Next
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Scheduler) run(ctx context.Context, name string) {
	s.mu.Lock()
	if s.busy[name] {
		s.mu.Unlock()
		log.Printf("Scheduler: %s skipped (already running)", name)
		return
	}
	s.busy[name] = true
	job := s.jobs[name]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy[name] = false
		s.mu.Unlock()
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("Scheduler: %s failed: %v", name, err)
		return
	}
	log.Printf("Scheduler: %s finished in %v", name, time.Since(start).Round(time.Millisecond))
}

// ValidateSchedule checks a five-field cron expression or an @every descriptor.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// NextRunTime calculates the first activation of schedule after from.
func NextRunTime(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Describe returns a human-readable description of a cron schedule
func Describe(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "*/15 * * * *":
		return "Every 15 minutes"
	case "*/30 * * * *":
		return "Every 30 minutes"
	case "0 */6 * * *":
		return "Every 6 hours"
	case "0 0 * * *":
		return "Daily at midnight"
	case "0 3 * * *":
		return "Daily at 03:00"
	default:
		return "Custom schedule: " + schedule
	}
}
