// Package handlers serves the pipeline over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/squadworks/squad/internal/artifacts"
	"github.com/squadworks/squad/internal/completion"
	"github.com/squadworks/squad/internal/runs"
	"github.com/squadworks/squad/internal/workflow"
	"github.com/squadworks/squad/pkg/models"
)

// Runner executes one pipeline and persists its artifacts.
type Runner interface {
	Execute(ctx context.Context, task string, maxReviewCycles int) (*models.PipelineRun, *artifacts.Paths, error)
}

// CreateRunRequest is the body of POST /api/v1/runs.
type CreateRunRequest struct {
	Task            string `json:"task" validate:"required"`
	MaxReviewCycles *int   `json:"max_review_cycles,omitempty" validate:"omitempty,gte=0"`
}

// RunResponse is returned after a run completes.
type RunResponse struct {
	Run       *models.PipelineRun `json:"run"`
	Artifacts *artifacts.Paths    `json:"artifacts"`
}

// RunHandlers serves /api/v1/runs.
type RunHandlers struct {
	runner        Runner
	store         runs.Store
	defaultCycles int
	validate      *validator.Validate
}

// NewRunHandlers creates handlers. defaultCycles applies when a request
// omits max_review_cycles.
func NewRunHandlers(runner Runner, store runs.Store, defaultCycles int) *RunHandlers {
	return &RunHandlers{
		runner:        runner,
		store:         store,
		defaultCycles: defaultCycles,
		validate:      validator.New(),
	}
}

// CreateRun handles POST /api/v1/runs. The pipeline runs synchronously
// within the request.
func (h *RunHandlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cycles := h.defaultCycles
	if req.MaxReviewCycles != nil {
		cycles = *req.MaxReviewCycles
	}

	run, paths, err := h.runner.Execute(r.Context(), req.Task, cycles)
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Int("status", status).Msg("Pipeline run failed")
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, RunResponse{Run: run, Artifacts: paths})
}

// ListRuns handles GET /api/v1/runs.
func (h *RunHandlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *RunHandlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// statusFor maps pipeline errors onto HTTP statuses. Completion failures
// are the upstream service's fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrEmptyTask):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case completion.IsTransport(err), completion.IsMalformed(err), errors.Is(err, completion.ErrEmptyHistory):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
