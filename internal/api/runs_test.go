package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irail-csv/pipeline/internal/db"
	"github.com/irail-csv/pipeline/internal/models"
)

type stubRunner struct {
	started chan struct{}
	release chan struct{}
	calls   int
}

func (s *stubRunner) Run(ctx context.Context) *models.RunSummary {
	s.calls++
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	summary := &models.RunSummary{RunID: "run-1", StartedAt: time.Now().UTC()}
	summary.Add(models.ItemResult{Kind: models.KindLiveboard, Target: "Gent-Sint-Pieters", Rows: 4})
	summary.FinishedAt = time.Now().UTC()
	return summary
}

type memStore struct {
	runs    []*models.RunSummary
	pingErr error
	listErr error
}

func (m *memStore) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []models.RunSummary{}
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.runs[i])
	}
	return out, nil
}

func (m *memStore) GetRun(ctx context.Context, runID string) (*models.RunSummary, error) {
	for _, run := range m.runs {
		if run.RunID == runID {
			return run, nil
		}
	}
	return nil, db.ErrRunNotFound
}

func (m *memStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func serve(t *testing.T, h *RunHandler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(h, []string{"*"}).ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestTriggerRun_ReturnsSummary(t *testing.T) {
	runner := &stubRunner{}
	h := NewRunHandler(runner, &memStore{})

	rec := serve(t, h, http.MethodPost, "/api/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 1, summary.ItemsOK)
	assert.Equal(t, 4, summary.RowsWritten)

	assert.Equal(t, 1, runner.calls)
}

func TestTriggerRun_WithoutStore(t *testing.T) {
	runner := &stubRunner{}
	h := NewRunHandler(runner, nil)

	rec := serve(t, h, http.MethodPost, "/api/runs")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)
}

func TestTriggerRun_ConcurrentRequestConflicts(t *testing.T) {
	runner := &stubRunner{started: make(chan struct{}), release: make(chan struct{})}
	h := NewRunHandler(runner, &memStore{})

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- serve(t, h, http.MethodPost, "/api/runs")
	}()
	<-runner.started

	rec := serve(t, h, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrRunInProgress.Error())

	close(runner.release)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, runner.calls)
}

func TestListRuns(t *testing.T) {
	store := &memStore{runs: []*models.RunSummary{{RunID: "a"}, {RunID: "b"}, {RunID: "c"}}}
	h := NewRunHandler(&stubRunner{}, store)

	rec := serve(t, h, http.MethodGet, "/api/runs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "c", resp.Runs[0].RunID)
	assert.Equal(t, "b", resp.Runs[1].RunID)
}

func TestListRuns_Errors(t *testing.T) {
	tests := []struct {
		name   string
		store  RunStore
		target string
		want   int
	}{
		{"bad limit", &memStore{}, "/api/runs?limit=abc", http.StatusBadRequest},
		{"zero limit", &memStore{}, "/api/runs?limit=0", http.StatusBadRequest},
		{"store failure", &memStore{listErr: errors.New("disk I/O error")}, "/api/runs", http.StatusInternalServerError},
		{"run log disabled", nil, "/api/runs", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRunHandler(&stubRunner{}, tt.store)
			rec := serve(t, h, http.MethodGet, tt.target)
			assert.Equal(t, tt.want, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGetRun(t *testing.T) {
	run := &models.RunSummary{RunID: "abc"}
	run.Add(models.ItemResult{Kind: models.KindVehicle, Target: "BE.NMBS.IC1832", Error: "timeout"})
	h := NewRunHandler(&stubRunner{}, &memStore{runs: []*models.RunSummary{run}})

	rec := serve(t, h, http.MethodGet, "/api/runs/abc")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.RunID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "timeout", got.Items[0].Error)

	rec = serve(t, h, http.MethodGet, "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		store    RunStore
		want     int
		database string
	}{
		{"connected", &memStore{}, http.StatusOK, "connected"},
		{"disconnected", &memStore{pingErr: errors.New("closed")}, http.StatusServiceUnavailable, "disconnected"},
		{"disabled", nil, http.StatusOK, "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRunHandler(&stubRunner{}, tt.store)
			rec := serve(t, h, http.MethodGet, "/health")
			assert.Equal(t, tt.want, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&body))
			assert.Equal(t, tt.database, body["database"])
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewRunHandler(&stubRunner{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	NewRouter(h, []string{"http://localhost:5173"}).ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
