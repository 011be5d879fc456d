package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/httputil"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/service"
)

type Handshaker interface {
	Begin(ctx context.Context, ownerID int64, req service.BeginRequest) (*model.StepResult, error)
	Submit(ctx context.Context, ownerID int64, input string) (*model.StepResult, error)
	Cancel(ctx context.Context, ownerID int64) (*model.StepResult, error)
	Status(ctx context.Context, ownerID int64) (*model.StepResult, error)
}

type AuthHandler struct {
	handshake Handshaker
}

func NewAuthHandler(handshake Handshaker) *AuthHandler {
	return &AuthHandler{handshake: handshake}
}

// POST /v1/owners/{ownerID}/auth
func (h *AuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req service.BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	step, err := h.handshake.Begin(r.Context(), ownerID, req)
	writeStep(w, ownerID, step, err)
}

// POST /v1/owners/{ownerID}/auth/submit
func (h *AuthHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	step, err := h.handshake.Submit(r.Context(), ownerID, req.Input)
	writeStep(w, ownerID, step, err)
}

// GET /v1/owners/{ownerID}/auth
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	step, err := h.handshake.Status(r.Context(), ownerID)
	writeStep(w, ownerID, step, err)
}

// DELETE /v1/owners/{ownerID}/auth
func (h *AuthHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	step, err := h.handshake.Cancel(r.Context(), ownerID)
	writeStep(w, ownerID, step, err)
}

// Register mounts the handshake routes on r.
func (h *AuthHandler) Register(r chi.Router) {
	r.Route("/owners/{ownerID}/auth", func(r chi.Router) {
		r.Post("/", h.Begin)
		r.Get("/", h.Status)
		r.Delete("/", h.Cancel)
		r.Post("/submit", h.Submit)
	})
}

// writeStep answers with the step, or with the error carrying the step as
// details when the handshake rejected the input but is still readable.
func writeStep(w http.ResponseWriter, ownerID int64, step *model.StepResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, step)
		return
	}

	appErr, ok := apperrors.AsAppError(err)
	if !ok || step == nil {
		writeError(w, err)
		return
	}

	status := httputil.StatusFromCode(appErr.Code)
	if status >= http.StatusInternalServerError || appErr.Code == apperrors.ErrCodeExternal {
		log.Warn().Err(err).Int64("ownerId", ownerID).Str("state", string(step.State)).Msg("handshake step failed")
	}

	httputil.WriteErrorWithStatus(w, status, apperrors.New(appErr.Code, appErr.Message).WithDetails(step))
}
