package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/rs/zerolog/hlog"
)

// CSRFHeader carries the anti-forgery token on state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// NewCSRFToken returns 32 random bytes, base64url encoded.
func NewCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// ValidCSRF reports whether token matches the session's token.
func ValidCSRF(sess *Session, token string) bool {
	if sess == nil || sess.CSRFToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(sess.CSRFToken)) == 1
}

// CSRFMiddleware rejects state-changing requests whose X-CSRF-Token header
// does not match the session's token. It must run after Manager.Middleware.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		sess, _ := SessionFromContext(r.Context())
		if !ValidCSRF(sess, r.Header.Get(CSRFHeader)) {
			ev := hlog.FromRequest(r).Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path)
			if sess != nil {
				ev = ev.Str("session_id", sess.ID).Str("user_id", sess.UserID)
			}
			ev.Msg("CSRF token mismatch")
			respond.Error(w, r, apperr.ErrCsrfMismatch)
			return
		}
		next.ServeHTTP(w, r)
	})
}
