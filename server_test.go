package conductor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Orchestrator, *callLog) {
	t.Helper()
	log := &callLog{}
	registry := NewRegistry()
	registerRecording(t, registry, &recordingComponent{name: "database", log: log}, nil, false)
	registerRecording(t, registry, &recordingComponent{name: "api", log: log}, []string{"database"}, false)

	orch := New(fastConfig(), registry, &testLogger{})
	require.NoError(t, orch.Start())
	t.Cleanup(func() { _ = orch.Stop() })

	return NewServer(":0", orch, &testLogger{}), orch, log
}

func doRequest(t *testing.T, server *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder
}

func TestStatusEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	recorder := doRequest(t, server, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, recorder.Code)

	var status SystemStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, 100, status.HealthScore)
	assert.Equal(t, StatusRunning, status.Components["database"])
	assert.Equal(t, StatusRunning, status.Components["api"])
}

func TestHealthzEndpointHealthy(t *testing.T) {
	server, _, _ := newTestServer(t)

	recorder := doRequest(t, server, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, recorder.Code)

	var summary HealthSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summary))
	assert.Equal(t, 100, summary.Score)
}

func TestHealthzEndpointUnhealthy(t *testing.T) {
	registry := NewRegistry()
	registerRunning(t, registry, "sick", &probedComponent{healthy: false, detail: "degraded"})

	orch := New(fastConfig(), registry, &testLogger{})
	server := NewServer(":0", orch, &testLogger{})

	// The endpoint reports the monitor's latest cycle; run one.
	orch.Health().Check(context.Background())

	recorder := doRequest(t, server, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	var summary HealthSummary
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.Score)
	assert.Equal(t, 1, summary.Unhealthy)
}

func TestHealthzEndpointIsReadOnly(t *testing.T) {
	registry := NewRegistry()
	registerRunning(t, registry, "sick", &probedComponent{healthy: false})

	orch := New(fastConfig(), registry, &testLogger{})
	server := NewServer(":0", orch, &testLogger{})

	// Before the first monitor cycle the report is optimistic, and the
	// query itself must not run a cycle.
	recorder := doRequest(t, server, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, recorder.Code)

	_, ok := orch.Health().LastSummary()
	assert.False(t, ok)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := NewRegistry()
	registerRunning(t, registry, "api", &meteredComponent{values: map[string]float64{
		MetricRequests: 42,
		MetricErrors:   2,
	}})

	orch := New(fastConfig(), registry, &testLogger{})
	server := NewServer(":0", orch, &testLogger{})

	orch.Metrics().Collect(context.Background())

	recorder := doRequest(t, server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, recorder.Code)

	var snapshot MetricsSnapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	assert.Equal(t, float64(42), snapshot.TotalRequests)
	assert.Equal(t, float64(2), snapshot.TotalErrors)
}

func TestRestartEndpoint(t *testing.T) {
	server, _, log := newTestServer(t)

	recorder := doRequest(t, server, http.MethodPost, "/components/database/restart")
	require.Equal(t, http.StatusOK, recorder.Code)

	calls := log.snapshot()
	assert.Contains(t, calls, "stop:database")
	assert.Equal(t, "start:database", calls[len(calls)-1])
}

func TestRestartEndpointUnknownComponent(t *testing.T) {
	server, _, _ := newTestServer(t)

	recorder := doRequest(t, server, http.MethodPost, "/components/ghost/restart")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRestartEndpointSystemNotRunning(t *testing.T) {
	registry := NewRegistry()
	registerRecording(t, registry, &recordingComponent{name: "a", log: &callLog{}}, nil, false)

	orch := New(fastConfig(), registry, &testLogger{})
	server := NewServer(":0", orch, &testLogger{})

	recorder := doRequest(t, server, http.MethodPost, "/components/a/restart")
	assert.Equal(t, http.StatusConflict, recorder.Code)
}
