package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"brandforge/internal/domain"
	"brandforge/internal/orchestrator"
)

type submitRequest struct {
	BrandID        string `json:"brand_id"`
	Prompt         string `json:"prompt"`
	WebhookURL     string `json:"webhook_url,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type submitResponse struct {
	JobID    string           `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Existing bool             `json:"existing,omitempty"`
}

// SubmitJob accepts a generation request and returns promptly; the pipeline
// runs out-of-band.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	result, err := a.Orchestrator.Submit(r.Context(), orchestrator.SubmitRequest{
		BrandID:        req.BrandID,
		Prompt:         req.Prompt,
		WebhookURL:     req.WebhookURL,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInstruction) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to submit job")
		return
	}

	code := http.StatusAccepted
	if result.Existing {
		code = http.StatusOK
	}
	a.json(w, code, submitResponse{JobID: result.JobID, Status: result.Status, Existing: result.Existing})
}

// JobStatus serves a read-only snapshot of a job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	snap, err := a.Orchestrator.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown job id")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: status failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, snap)
}

// CancelJob requests best-effort cooperative cancellation.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	err := a.Orchestrator.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
		a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "unknown job id")
	case errors.Is(err, domain.ErrJobTerminal):
		a.error(w, http.StatusConflict, "conflict", "job already terminal")
	default:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
	}
}

type tweakRequest struct {
	Instruction string `json:"instruction"`
}

// TweakJob resumes a completed job with a refinement instruction.
func (a *App) TweakJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	var req tweakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	snap, err := a.Orchestrator.Tweak(r.Context(), jobID, req.Instruction)
	switch {
	case err == nil:
		a.json(w, http.StatusAccepted, map[string]any{"job_id": snap.JobID, "status": "resumed"})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "unknown job id")
	case errors.Is(err, domain.ErrInvalidInstruction):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotResumable):
		a.error(w, http.StatusConflict, "conflict", "only completed jobs can be tweaked")
	default:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: tweak failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to tweak job")
	}
}

type decisionRequest struct {
	Decision    string `json:"decision"`
	Instruction string `json:"instruction,omitempty"`
}

// DecideJob resolves a needs_review pause with approve, revise, or abandon.
func (a *App) DecideJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	snap, err := a.Orchestrator.Decide(r.Context(), jobID, domain.ReviewDecision(req.Decision), req.Instruction)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, snap)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "unknown job id")
	case errors.Is(err, domain.ErrInvalidInstruction):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotReviewable):
		a.error(w, http.StatusConflict, "conflict", "job is not awaiting review")
	default:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: decision failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply decision")
	}
}
