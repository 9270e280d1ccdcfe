package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/metadata"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(filepath.Join(dir, "biblioteca.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, dir
}

func TestNewClient_CreatesTasksDatabase(t *testing.T) {
	_, dir := newTestClient(t)

	_, err := os.Stat(filepath.Join(dir, "biblioteca-tasks.db"))
	assert.NoError(t, err, "tasks database should be created")
}

func TestTasksDBPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "library-tasks.db"), TasksDBPath("data/library.db"))
	assert.Equal(t, "library-tasks", TasksDBPath("library"))
}

func TestClient_StartStop(t *testing.T) {
	client, _ := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	client.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.True(t, client.Stop(stopCtx))
}

func TestClient_StopWithoutStart(t *testing.T) {
	client, _ := newTestClient(t)
	assert.True(t, client.Stop(context.Background()))
}

type echoTask struct {
	Value string `json:"value"`
}

func (t echoTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{Name: "echo", MaxAttempts: 1, Backoff: time.Second, Timeout: 5 * time.Second}
}

func TestClient_EnqueueAndRun(t *testing.T) {
	client, _ := newTestClient(t)

	executed := make(chan string, 1)
	client.Register(backlite.NewQueue(func(ctx context.Context, task echoTask) error {
		executed <- task.Value
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	id, err := client.Enqueue(echoTask{Value: "hola"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case val := <-executed:
		assert.Equal(t, "hola", val)
	case <-time.After(5 * time.Second):
		t.Fatal("task was not executed within timeout")
	}

	status, err := client.Status(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, "not_found", status)
}

func TestConfigFrom(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFrom(config.Tasks{}))

	cfg := ConfigFrom(config.Tasks{Workers: 4, ReleaseAfter: time.Minute})
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.ReleaseAfter)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}

func TestNewTask(t *testing.T) {
	tests := []struct {
		name      string
		taskType  string
		params    RunParams
		wantQueue string
		wantErr   error
	}{
		{"enrich book", QueueEnrichBook, RunParams{BookID: 7}, QueueEnrichBook, nil},
		{"enrich book without id", QueueEnrichBook, RunParams{}, "", ErrBookIDRequired},
		{"enrich all", QueueEnrichAllBooks, RunParams{}, QueueEnrichAllBooks, nil},
		{"overdue sweep", QueueMarkOverdue, RunParams{}, QueueMarkOverdue, nil},
		{"audit cleanup", QueueCleanupAudit, RunParams{RetentionDays: 10}, QueueCleanupAudit, nil},
		{"unknown", "reindex", RunParams{}, "", ErrUnknownTaskType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := NewTask(tt.taskType, tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQueue, task.Config().Name)
		})
	}

	assert.Len(t, Types(), 4)
}

type enrichEvent struct {
	userID      uint
	description string
	bookID      uint
	failed      bool
}

type recordingAuditor struct {
	events []enrichEvent
}

func (a *recordingAuditor) LogMetadataEnrich(userID uint, description string, bookID uint, err error) {
	a.events = append(a.events, enrichEvent{userID, description, bookID, err != nil})
}

type mockEnricher struct {
	result *metadata.EnrichmentResult
	bulk   *metadata.BulkEnrichmentResult
	err    error
	calls  int
}

func (m *mockEnricher) EnrichBook(ctx context.Context, bookID uint) (*metadata.EnrichmentResult, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockEnricher) EnrichAllMissing(ctx context.Context) (*metadata.BulkEnrichmentResult, error) {
	m.calls++
	return m.bulk, m.err
}

func TestEnrichBookProcessor(t *testing.T) {
	book := &entities.Book{ID: 3, Title: "Rayuela"}

	tests := []struct {
		name    string
		mock    *mockEnricher
		wantErr bool
	}{
		{"updated", &mockEnricher{result: &metadata.EnrichmentResult{Book: book, FieldsUpdated: []string{"publisher"}}}, false},
		{"no match", &mockEnricher{result: &metadata.EnrichmentResult{Book: book, NoMatch: true}}, false},
		{"book deleted", &mockEnricher{err: database.ErrNotFound}, false},
		{"lookup failed is retried", &mockEnricher{err: metadata.ErrLookupFailed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnrichBookProcessor(tt.mock, nil)(context.Background(), EnrichBookTask{BookID: 3})
			if tt.wantErr {
				assert.ErrorIs(t, err, metadata.ErrLookupFailed)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, tt.mock.calls)
		})
	}

	assert.Error(t, EnrichBookProcessor(nil, nil)(context.Background(), EnrichBookTask{BookID: 3}))
}

func TestEnrichBookProcessor_Audits(t *testing.T) {
	book := &entities.Book{ID: 3, Title: "Rayuela"}
	auditor := &recordingAuditor{}

	updated := &mockEnricher{result: &metadata.EnrichmentResult{Book: book, FieldsUpdated: []string{"publisher", "page_count"}}}
	require.NoError(t, EnrichBookProcessor(updated, auditor)(context.Background(), EnrichBookTask{BookID: 3, ActorID: 7}))

	failed := &mockEnricher{err: metadata.ErrLookupFailed}
	require.Error(t, EnrichBookProcessor(failed, auditor)(context.Background(), EnrichBookTask{BookID: 3}))

	deleted := &mockEnricher{err: database.ErrNotFound}
	require.NoError(t, EnrichBookProcessor(deleted, auditor)(context.Background(), EnrichBookTask{BookID: 4}))

	assert.Equal(t, []enrichEvent{
		{userID: 7, description: "updated publisher, page_count", bookID: 3},
		{description: "enrichment failed", bookID: 3, failed: true},
	}, auditor.events)
}

func TestEnrichAllBooksProcessor(t *testing.T) {
	ok := &mockEnricher{bulk: &metadata.BulkEnrichmentResult{TotalBooks: 2, Enriched: 2}}
	assert.NoError(t, EnrichAllBooksProcessor(ok)(context.Background(), EnrichAllBooksTask{}))

	busy := &mockEnricher{err: metadata.ErrEnrichmentRunning}
	assert.NoError(t, EnrichAllBooksProcessor(busy)(context.Background(), EnrichAllBooksTask{}))

	broken := &mockEnricher{err: errors.New("database is locked")}
	assert.Error(t, EnrichAllBooksProcessor(broken)(context.Background(), EnrichAllBooksTask{}))
}

type mockMarker struct {
	at time.Time
}

func (m *mockMarker) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.at = now
	return 2, nil
}

func TestMarkOverdueLoansProcessor(t *testing.T) {
	marker := &mockMarker{}
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	err := MarkOverdueLoansProcessor(marker, func() time.Time { return now })(context.Background(), MarkOverdueLoansTask{})
	require.NoError(t, err)
	assert.Equal(t, now, marker.at)
}

type mockCleaner struct {
	retention time.Duration
}

func (m *mockCleaner) DeleteOldEvents(retention time.Duration) (int64, error) {
	m.retention = retention
	return 5, nil
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	cleaner := &mockCleaner{}

	require.NoError(t, CleanupAuditEventsProcessor(cleaner)(context.Background(), CleanupAuditEventsTask{}))
	assert.Equal(t, DefaultAuditRetentionDays*24*time.Hour, cleaner.retention)

	require.NoError(t, CleanupAuditEventsProcessor(cleaner)(context.Background(), CleanupAuditEventsTask{RetentionDays: 7}))
	assert.Equal(t, 7*24*time.Hour, cleaner.retention)
}
