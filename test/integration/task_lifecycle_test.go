//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtrellis/jobtrellis/internal/api"
	"github.com/jobtrellis/jobtrellis/internal/apprunner"
	"github.com/jobtrellis/jobtrellis/internal/config"
	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/manager"
	"github.com/jobtrellis/jobtrellis/internal/provider"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
	"github.com/jobtrellis/jobtrellis/internal/worker"
)

func init() {
	logger.Init("error", false)
}

func setupTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(t.TempDir(), "lifecycle", 2*time.Second)
	require.NoError(t, err)
	return q
}

func sumRunner() apprunner.Runner {
	return apprunner.NewFunctionRunner(func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error) {
		var total int
		for range args {
			total++
		}
		return []byte("ok"), nil
	})
}

func TestTaskLifecycle_SubmitRunComplete(t *testing.T) {
	q := setupTestQueue(t)
	mgr := manager.New(manager.Config{Scheduler: manager.SchedulerConfig{MaxWorkers: 1}}, provider.NewNull())

	t1 := task.New("sum", []task.Arg{task.Lit([]byte("1"))}, nil)
	futures, err := mgr.Add(q, []*task.Task{t1}, queue.RejectExisting)
	require.NoError(t, err)
	require.Len(t, futures, 1)

	catalog := apprunner.NewCatalog()
	catalog.Register("sum", sumRunner())
	w := worker.New(q, catalog, mgr.ID, nil)

	ran, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ran)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, state, err := futures[0].Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.StateSucceeded, state)
	assert.Equal(t, "ok", string(result))
}

func TestTaskLifecycle_UpstreamFailureCancelsDependent(t *testing.T) {
	q := setupTestQueue(t)
	mgr := manager.New(manager.Config{Scheduler: manager.SchedulerConfig{MaxWorkers: 1}}, provider.NewNull())

	failing := task.New("boom", nil, nil)
	futures, err := mgr.Add(q, []*task.Task{failing}, queue.RejectExisting)
	require.NoError(t, err)

	dependent := task.New("sum", []task.Arg{task.RefArg(failing.ID)}, nil)
	_, err = mgr.Add(q, []*task.Task{dependent}, queue.RejectExisting)
	require.NoError(t, err)

	catalog := apprunner.NewCatalog()
	catalog.Register("boom", apprunner.NewFunctionRunner(func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error) {
		return nil, assert.AnError
	}))
	w := worker.New(q, catalog, mgr.ID, nil)

	ran, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ran)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, state, err := futures[0].Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, state)

	tasks, err := q.Tasks(queue.Filter{ID: dependent.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateCancelled, tasks[0].State)
}

func TestAdminServer_HealthAndQueues(t *testing.T) {
	q := setupTestQueue(t)
	mgr := manager.New(manager.Config{}, provider.NewNull())
	t1 := task.New("sum", nil, nil)
	_, err := mgr.Add(q, []*task.Task{t1}, queue.RejectExisting)
	require.NoError(t, err)

	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"}}
	server := api.NewServer(cfg, map[string]*queue.Queue{"lifecycle": q})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/queues", nil)
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "queues")

	req = httptest.NewRequest(http.MethodGet, "/queues/lifecycle/tasks/"+t1.ID, nil)
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
