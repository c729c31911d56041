package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/gatekeeper/internal/tasks"
)

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []backlite.Task
	statuses map[string]backlite.TaskStatus
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, ts ...backlite.Task) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	ids := make([]string, len(ts))
	for i := range ts {
		q.enqueued = append(q.enqueued, ts[i])
		ids[i] = "task-" + string(rune('a'+len(q.enqueued)-1))
	}
	return ids, nil
}

func (q *fakeQueue) Status(_ context.Context, id string) (backlite.TaskStatus, error) {
	if status, ok := q.statuses[id]; ok {
		return status, nil
	}
	return backlite.TaskStatusNotFound, nil
}

type fakeMaintenance struct {
	runs int
}

func (m *fakeMaintenance) RunNow(context.Context) ([]string, error) {
	m.runs++
	return []string{"m-1", "m-2"}, nil
}

func setupTasksApp(t *testing.T) (*testApp, *fakeQueue, *fakeMaintenance) {
	t.Helper()
	app := setupApp(t)
	queue := &fakeQueue{statuses: map[string]backlite.TaskStatus{"done": backlite.TaskStatusSuccess}}
	maintenance := &fakeMaintenance{}
	app.cfg.TaskClient = queue
	app.cfg.Maintenance = maintenance
	return app, queue, maintenance
}

func TestTasksController_RequiresAdmin(t *testing.T) {
	app, queue, _ := setupTasksApp(t)
	router := app.router()

	rr := newClient(t, router).get("/api/tasks/types")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	ada := app.signedIn(t, router, "ada@example.com")
	rr = ada.postJSON("/api/tasks/cleanup_audit_events/run", map[string]int{})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, queue.enqueued)
}

func TestTasksController_ListTaskTypes(t *testing.T) {
	app, _, _ := setupTasksApp(t)
	admin := app.signedIn(t, app.router(), adminEmail)

	rr := admin.get("/api/tasks/types")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		TaskTypes []TaskTypeInfo `json:"task_types"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.TaskTypes, 2)
	assert.Equal(t, tasks.QueueCleanupAuditEvents, body.TaskTypes[0].Type)
	assert.Equal(t, tasks.QueuePruneUserMirror, body.TaskTypes[1].Type)
}

func TestTasksController_RunTask(t *testing.T) {
	app, queue, _ := setupTasksApp(t)
	admin := app.signedIn(t, app.router(), adminEmail)

	rr := admin.postJSON("/api/tasks/cleanup_audit_events/run", map[string]int{"retention_days": 7})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"task_ids":["task-a"]`)

	rr = admin.postJSON("/api/tasks/prune_user_mirror/run", map[string]int{})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	require.Len(t, queue.enqueued, 2)
	assert.Equal(t, tasks.CleanupAuditEventsTask{RetentionDays: 7}, queue.enqueued[0])
	assert.Equal(t, tasks.PruneUserMirrorTask{}, queue.enqueued[1])
}

func TestTasksController_RunTaskErrors(t *testing.T) {
	app, queue, _ := setupTasksApp(t)
	admin := app.signedIn(t, app.router(), adminEmail)

	rr := admin.postJSON("/api/tasks/rebuild_index/run", map[string]int{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown task type")

	rr = admin.postJSON("/api/tasks/prune_user_mirror/run", map[string]int{"retention_days": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	queue.err = errors.New("queue down")
	rr = admin.postJSON("/api/tasks/prune_user_mirror/run", map[string]int{})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "queue down")
}

func TestTasksController_GetTaskStatus(t *testing.T) {
	app, _, _ := setupTasksApp(t)
	admin := app.signedIn(t, app.router(), adminEmail)

	rr := admin.get("/api/tasks/done")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"done","status":"success"}`, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, admin.get("/api/tasks/missing").Code)
}

func TestTasksController_RunMaintenance(t *testing.T) {
	app, _, maintenance := setupTasksApp(t)
	admin := app.signedIn(t, app.router(), adminEmail)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/maintenance/run", strings.NewReader(""))
	rr := admin.do(req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"task_ids":["m-1","m-2"]`)
	assert.Equal(t, 1, maintenance.runs)
}

func TestTasksController_MaintenanceNotConfigured(t *testing.T) {
	app, _, _ := setupTasksApp(t)
	app.cfg.Maintenance = nil
	admin := app.signedIn(t, app.router(), adminEmail)

	rr := admin.do(httptest.NewRequest(http.MethodPost, "/api/tasks/maintenance/run", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestTaskStatusToString(t *testing.T) {
	assert.Equal(t, "pending", taskStatusToString(backlite.TaskStatusPending))
	assert.Equal(t, "running", taskStatusToString(backlite.TaskStatusRunning))
	assert.Equal(t, "failure", taskStatusToString(backlite.TaskStatusFailure))
	assert.Equal(t, "not_found", taskStatusToString(backlite.TaskStatusNotFound))
}
