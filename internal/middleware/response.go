package middleware

import (
	"net/http"

	"github.com/openclaw/export-worker-go/internal/httputil"
)

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}
