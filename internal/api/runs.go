// Package api exposes the pipeline over HTTP: trigger a run and read the
// run log.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/irail-csv/pipeline/internal/db"
	"github.com/irail-csv/pipeline/internal/models"
)

// ErrRunInProgress is reported when a run is requested while another one
// is still going.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Runner performs one pipeline run and records it in the run log.
type Runner interface {
	Run(ctx context.Context) *models.RunSummary
}

// RunStore reads the run log. *db.DB implements it.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*models.RunSummary, error)
	Ping(ctx context.Context) error
}

// RunHandler handles HTTP requests for pipeline runs. The store may be nil
// when the run log is disabled.
type RunHandler struct {
	runner Runner
	store  RunStore
	mu     sync.Mutex
}

// NewRunHandler creates a new handler running runner and reading store
func NewRunHandler(runner Runner, store RunStore) *RunHandler {
	return &RunHandler{runner: runner, store: store}
}

// ListRunsResponse is the JSON response for GET /api/runs
type ListRunsResponse struct {
	Runs  []models.RunSummary `json:"runs"`
	Count int                 `json:"count"`
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TriggerRun handles POST /api/runs
// Runs the pipeline once and returns its summary. Only one run at a time.
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if !h.mu.TryLock() {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: ErrRunInProgress.Error()})
		return
	}
	defer h.mu.Unlock()

	// A client hanging up does not cut the run short
	ctx := context.WithoutCancel(r.Context())

	log.Printf("Pipeline: run requested via HTTP from %s", r.RemoteAddr)
	summary := h.runner.Run(ctx)

	writeJSON(w, http.StatusOK, summary)
}

// ListRuns handles GET /api/runs
// Returns the most recent runs, newest first. Accepts ?limit=N.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeRunLogDisabled(w)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "limit must be an integer between 1 and 500",
				Details: map[string]interface{}{"limit": raw},
			})
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to retrieve runs",
			Details: map[string]interface{}{"internal": err.Error()},
		})
		return
	}

	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Count: len(runs)})
}

// GetRun handles GET /api/runs/{runID}
// Returns one run with its items.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeRunLogDisabled(w)
		return
	}

	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "runID parameter is required"})
		return
	}

	run, err := h.store.GetRun(r.Context(), runID)
	if errors.Is(err, db.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Run not found",
			Details: map[string]interface{}{"runId": runID},
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to retrieve run",
			Details: map[string]interface{}{"internal": err.Error()},
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func writeRunLogDisabled(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Run log is disabled (SQLITE_DATABASE=off)"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
