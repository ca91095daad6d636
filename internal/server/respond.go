package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/logger"
)

type messageResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError answers with the status for err's kind. Client errors carry
// their own message; server errors are logged and answered with fallback so
// backend details do not leak.
func respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := errs.HTTPStatus(err)
	msg := fallback

	var e *errs.Error
	if status < http.StatusInternalServerError && errors.As(err, &e) {
		msg = e.Message
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.ErrorWith(fallback, err, map[string]any{"status": status})
	} else {
		log.With().Int("status", status).Str("kind", errs.KindOf(err).String()).Logger().Debug(msg)
	}

	respondJSON(w, status, messageResponse{Message: msg})
}
