// Package respond writes JSON responses and maps application errors onto
// HTTP status codes.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/rs/zerolog/hlog"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Message writes {"message": msg} with status 200.
func Message(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusOK, map[string]string{"message": msg})
}

// Status maps an error kind onto an HTTP status code.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindDuplicateIdentity, apperr.KindInvalidURL,
		apperr.KindInvalidToken, apperr.KindInvalidOrExpiredToken, apperr.KindImageFetchFailed:
		return http.StatusBadRequest
	case apperr.KindInvalidCredentials, apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden, apperr.KindCsrfMismatch:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error writes {"error": msg} for err. Internal errors are logged with their
// stack and replaced by a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := Status(kind)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Stack().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	JSON(w, status, map[string]string{"error": apperr.PublicMessage(err)})
}
