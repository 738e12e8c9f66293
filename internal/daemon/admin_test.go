package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
)

type fakeBackend struct {
	runs      []RunRecord
	enqueued  []pipeline.Trigger
	queueFull bool
}

func (f *fakeBackend) Enqueue(trigger pipeline.Trigger, _ map[string]string, _ chan<- pipeline.Result) error {
	if f.queueFull {
		return errors.DaemonError("run queue full")
	}
	f.enqueued = append(f.enqueued, trigger)
	return nil
}

func (f *fakeBackend) ActiveRuns() int         { return 1 }
func (f *fakeBackend) QueueLength() int        { return 2 }
func (f *fakeBackend) Uptime() time.Duration   { return 90 * time.Second }
func (f *fakeBackend) RecentRuns() []RunRecord { return f.runs }

func TestAdminHealthz(t *testing.T) {
	mux := newAdminMux(&fakeBackend{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAdminStatus(t *testing.T) {
	backend := &fakeBackend{runs: []RunRecord{{RunID: "run-1"}}}
	mux := newAdminMux(backend, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "1m30s", status.Uptime)
	assert.Equal(t, 1, status.ActiveRuns)
	assert.Equal(t, 2, status.QueueLength)
	require.Len(t, status.Runs, 1)
	assert.Equal(t, "run-1", status.Runs[0].RunID)
}

func TestAdminTriggerRun(t *testing.T) {
	backend := &fakeBackend{}
	mux := newAdminMux(backend, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, backend.enqueued, 1)
	assert.Equal(t, pipeline.TriggerManual, backend.enqueued[0])
}

func TestAdminTriggerRunWrongMethod(t *testing.T) {
	mux := newAdminMux(&fakeBackend{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/run/trigger", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminTriggerRunQueueFull(t *testing.T) {
	mux := newAdminMux(&fakeBackend{queueFull: true}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/run/trigger", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
