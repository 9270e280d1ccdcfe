package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/tasks"
)

func setupTasksRouter(queue *fakeQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewTasksController(queue)

	router := gin.New()
	router.Use(asUser(3, entities.UserRoleAdmin))
	router.GET("/api/tasks/types", controller.ListTaskTypes)
	router.GET("/api/tasks/:id", controller.GetTaskStatus)
	router.POST("/api/tasks/:type/run", controller.RunTask)
	return router
}

func TestTasksController_ListTaskTypes(t *testing.T) {
	router := setupTasksRouter(&fakeQueue{})

	w := doJSON(router, http.MethodGet, "/api/tasks/types", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string][]tasks.TypeInfo](t, w)
	assert.Equal(t, tasks.Types(), resp["task_types"])
}

func TestTasksController_GetTaskStatus(t *testing.T) {
	queue := &fakeQueue{statuses: map[string]string{"abc": "succeeded"}}
	router := setupTasksRouter(queue)

	w := doJSON(router, http.MethodGet, "/api/tasks/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "succeeded", decode[map[string]string](t, w)["status"])

	w = doJSON(router, http.MethodGet, "/api/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTasksController_RunTask(t *testing.T) {
	t.Run("enqueues from JSON", func(t *testing.T) {
		queue := &fakeQueue{}
		router := setupTasksRouter(queue)

		w := doJSON(router, http.MethodPost, "/api/tasks/enrich_book/run", `{"book_id":12}`)

		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		resp := decode[map[string]any](t, w)
		assert.Equal(t, "task-1", resp["task_id"])
		assert.Equal(t, tasks.QueueEnrichBook, resp["type"])
		require.Len(t, queue.enqueued, 1)
		assert.Equal(t, tasks.EnrichBookTask{BookID: 12, ActorID: 3}, queue.enqueued[0])
	})

	t.Run("enqueues without body", func(t *testing.T) {
		queue := &fakeQueue{}
		router := setupTasksRouter(queue)

		w := doJSON(router, http.MethodPost, "/api/tasks/mark_overdue_loans/run", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Len(t, queue.enqueued, 1)
	})

	t.Run("unknown type is 404", func(t *testing.T) {
		router := setupTasksRouter(&fakeQueue{})

		w := doJSON(router, http.MethodPost, "/api/tasks/reindex/run", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing book id is 400", func(t *testing.T) {
		router := setupTasksRouter(&fakeQueue{})

		w := doJSON(router, http.MethodPost, "/api/tasks/enrich_book/run", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("enqueue failure is 500", func(t *testing.T) {
		router := setupTasksRouter(&fakeQueue{err: errors.New("closed")})

		w := doJSON(router, http.MethodPost, "/api/tasks/enrich_all_books/run", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("HTMX form request gets a fragment", func(t *testing.T) {
		queue := &fakeQueue{}
		router := setupTasksRouter(queue)

		req := httptest.NewRequest(http.MethodPost, "/api/tasks/cleanup_audit_events/run", strings.NewReader("retention_days=30"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "task-success")
		assert.Contains(t, w.Body.String(), "task-1")
		require.Len(t, queue.enqueued, 1)
	})
}
