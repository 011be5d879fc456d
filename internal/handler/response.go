package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// int64Param reads a positive numeric URL parameter.
func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput(name, "must be a positive number")
	}
	return id, nil
}

func ownerIDParam(r *http.Request) (int64, error) {
	return int64Param(r, "ownerID")
}
