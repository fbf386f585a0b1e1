package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/http"
)

type mockStatus struct {
	err         error
	done, total int64
}

func (m *mockStatus) CheckReadiness(_ context.Context) error { return m.err }
func (m *mockStatus) Progress() (int64, int64)               { return m.done, m.total }

func newTestServer(status *mockStatus) *httpadapter.Server {
	return httpadapter.NewServer(":0", status, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockStatus{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(&mockStatus{done: 3, total: 7})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, float64(3), body["files_done"])
	assert.Equal(t, float64(7), body["files_total"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(&mockStatus{err: fmt.Errorf("no files completed yet"), total: 7})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no files completed yet", body["error"])
	assert.Equal(t, float64(0), body["files_done"])
	assert.Equal(t, float64(7), body["files_total"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockStatus{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
