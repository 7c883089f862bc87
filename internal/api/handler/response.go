package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/maraichr/nightcrawler/pkg/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeAPIError writes a structured error response. 5xx errors are logged
// with their cause and the request id.
func writeAPIError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, e *apierr.Error) {
	if e.Status() >= 500 && logger != nil {
		logger.Error(e.Message(),
			slog.String("code", string(e.Code())),
			slog.String("error", e.Error()),
			slog.String("request_id", chimw.GetReqID(r.Context())))
	}
	writeJSON(w, e.Status(), e.Response())
}
