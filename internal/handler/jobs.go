package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/config"
	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
)

// JobQueue is the part of the queue the API exposes.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType model.JobType, ownerID int64, payload map[string]any) (int64, error)
	StatusOf(id int64) model.JobStatus
	Get(id int64) (model.Job, bool)
	TasksOwnedBy(ownerID int64) []model.Job
}

type JobsHandler struct {
	queue          JobQueue
	enqueueTimeout time.Duration
}

func NewJobsHandler(queue JobQueue) *JobsHandler {
	return &JobsHandler{queue: queue, enqueueTimeout: config.EnqueueTimeout}
}

type submitJobRequest struct {
	Type    model.JobType  `json:"type"`
	OwnerID int64          `json:"ownerId"`
	Payload map[string]any `json:"payload"`
}

type jobStatusResponse struct {
	JobID         int64           `json:"jobId"`
	Status        model.JobStatus `json:"status"`
	Type          model.JobType   `json:"type,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// POST /v1/jobs
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.Type == "" {
		writeError(w, apperrors.MissingRequired("type"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.enqueueTimeout)
	defer cancel()

	id, err := h.queue.Enqueue(ctx, req.Type, req.OwnerID, req.Payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Int64("ownerId", req.OwnerID).Str("jobType", string(req.Type)).Msg("queue full, job rejected")
			err = apperrors.QueueFull()
		}
		writeError(w, err)
		return
	}

	log.Info().
		Int64("jobId", id).
		Int64("ownerId", req.OwnerID).
		Str("jobType", string(req.Type)).
		Msg("job submitted")

	writeJSON(w, http.StatusAccepted, jobStatusResponse{JobID: id, Status: model.JobStatusPending})
}

// GET /v1/jobs/{jobID}
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "jobID")
	if err != nil {
		writeError(w, err)
		return
	}

	status := h.queue.StatusOf(id)
	if status == model.JobStatusUnknown {
		writeError(w, apperrors.JobNotFound(id))
		return
	}

	resp := jobStatusResponse{JobID: id, Status: status}
	if job, ok := h.queue.Get(id); ok {
		resp.Type = job.Type
		resp.FailureReason = job.FailureReason
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/owners/{ownerID}/jobs
func (h *JobsHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	jobs := h.queue.TasksOwnedBy(ownerID)
	if status := model.JobStatus(r.URL.Query().Get("status")); status != "" {
		filtered := make([]model.Job, 0, len(jobs))
		for _, job := range jobs {
			if job.Status == status {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	p := ParsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   window(jobs, p),
		"total":  len(jobs),
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// Register mounts the job routes on r.
func (h *JobsHandler) Register(r chi.Router) {
	r.Post("/jobs", h.Submit)
	r.Get("/jobs/{jobID}", h.Status)
	r.Get("/owners/{ownerID}/jobs", h.ListOwned)
}
