package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
)

type SettingsStore interface {
	Settings(ctx context.Context, ownerID int64) (*model.Settings, error)
	UpdateSettings(ctx context.Context, ownerID int64, update model.SettingsUpdate) (*model.Settings, error)
	Delete(ctx context.Context, ownerID int64) error
}

type SettingsHandler struct {
	store SettingsStore
}

func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GET /v1/owners/{ownerID}/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	settings, err := h.store.Settings(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PUT /v1/owners/{ownerID}/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var update model.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	settings, err := h.store.UpdateSettings(r.Context(), ownerID, update)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().
		Int64("ownerId", ownerID).
		Bool("analysisKey", update.AnalysisKey != nil).
		Bool("customPrompt", update.CustomPrompt != nil).
		Bool("defaultExportLimit", update.DefaultExportLimit != nil).
		Msg("settings updated")

	writeJSON(w, http.StatusOK, settings)
}

// DELETE /v1/owners/{ownerID}/credential
// Disconnects the chat account and drops every stored secret.
func (h *SettingsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), ownerID); err != nil {
		writeError(w, err)
		return
	}

	log.Info().Int64("ownerId", ownerID).Msg("credential deleted")
	w.WriteHeader(http.StatusNoContent)
}

// Register mounts the settings routes on r.
func (h *SettingsHandler) Register(r chi.Router) {
	r.Get("/owners/{ownerID}/settings", h.Get)
	r.Put("/owners/{ownerID}/settings", h.Update)
	r.Delete("/owners/{ownerID}/credential", h.Disconnect)
}
