package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger"
)

type fakeHealth struct {
	status opsledger.HealthStatus
	calls  int
}

func (f *fakeHealth) Health(ctx context.Context) opsledger.HealthStatus {
	f.calls++
	return f.status
}

func TestHealthz_Healthy(t *testing.T) {
	h := &fakeHealth{status: opsledger.HealthStatus{
		Healthy:   true,
		PoolStats: opsledger.PoolStats{MaxOpenConnections: 20, OpenConnections: 1, Idle: 1},
	}}
	srv := New(":0", h, prometheus.NewRegistry(), zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body opsledger.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Healthy)
	assert.Equal(t, 20, body.PoolStats.MaxOpenConnections)
	assert.Equal(t, 1, h.calls)
}

func TestHealthz_Unhealthy(t *testing.T) {
	h := &fakeHealth{status: opsledger.HealthStatus{Healthy: false, Error: "connection refused"}}
	srv := New(":0", h, prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "opsledger_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv := New(":0", &fakeHealth{}, reg, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opsledger_test_total 3")
}

func TestUnknownRoute(t *testing.T) {
	srv := New(":0", &fakeHealth{}, prometheus.NewRegistry(), zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/materials", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
