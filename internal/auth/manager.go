package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/rs/zerolog/hlog"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "sid"
	// DefaultTTL is the inactivity window after which a session expires.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultAnonymousTTL bounds a fresh session until the client presents
	// its cookie again.
	DefaultAnonymousTTL = time.Hour
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Secret       []byte
	TTL          time.Duration
	AnonymousTTL time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
	Now    func() time.Time
}

// Manager resolves, creates, rotates and destroys sessions.
type Manager struct {
	store   SessionStore
	secret  []byte
	ttl     time.Duration
	anonTTL time.Duration
	secure  bool
	now     func() time.Time
}

// NewManager creates a Manager over store.
func NewManager(store SessionStore, cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.AnonymousTTL <= 0 || cfg.AnonymousTTL > cfg.TTL {
		cfg.AnonymousTTL = min(DefaultAnonymousTTL, cfg.TTL)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:   store,
		secret:  cfg.Secret,
		ttl:     cfg.TTL,
		anonTTL: cfg.AnonymousTTL,
		secure:  cfg.Secure,
		now:     cfg.Now,
	}
}

// Middleware attaches a session to every request. A missing, expired or
// tampered cookie yields a fresh anonymous session with its own CSRF token,
// kept only for the short anonymous TTL. A resumed session has its expiry
// pushed out by the full TTL; if it was deleted meanwhile (logout from
// another request) the request continues with a fresh session instead.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, err := m.load(ctx, r)
		if err != nil {
			respond.Error(w, r, apperr.Internal(err))
			return
		}

		now := m.now().UTC()
		if sess != nil {
			sess.ExpiresAt = now.Add(m.ttl)
			err = m.store.Touch(ctx, sess.ID, sess.ExpiresAt)
			if errors.Is(err, ErrSessionNotFound) {
				sess = nil
			} else if err != nil {
				respond.Error(w, r, apperr.Internal(err))
				return
			}
		}
		if sess == nil {
			if sess, err = m.newSession(now); err == nil {
				err = m.store.Save(ctx, sess)
			}
			if err != nil {
				respond.Error(w, r, apperr.Internal(err))
				return
			}
		}
		if err := m.setCookie(w, sess, now); err != nil {
			respond.Error(w, r, apperr.Internal(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}

// load returns the stored session named by the request cookie, or nil when
// there is none to resume.
func (m *Manager) load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	id, err := parseSessionID(m.secret, cookie.Value)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Discarding session cookie")
		return nil, nil
	}
	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	return sess, err
}

func (m *Manager) newSession(now time.Time) (*Session, error) {
	token, err := NewCSRFToken()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        uuid.NewString(),
		CSRFToken: token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.anonTTL),
	}, nil
}

// setCookie queues the sid cookie for sess, replacing any sid cookie already
// set on this response.
func (m *Manager) setCookie(w http.ResponseWriter, sess *Session, now time.Time) error {
	value, err := signSessionID(m.secret, sess.ID, sess.CreatedAt)
	if err != nil {
		return err
	}
	dropSessionCookie(w)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sess.ExpiresAt.Sub(now) / time.Second),
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func dropSessionCookie(w http.ResponseWriter) {
	h := w.Header()
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, CookieName+"=") {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		h.Del("Set-Cookie")
		return
	}
	h["Set-Cookie"] = kept
}

// Establish binds the request's session to userID under a new session id,
// keeping its CSRF token. The old id stops resolving.
func (m *Manager) Establish(ctx context.Context, w http.ResponseWriter, userID string) error {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return errors.New("no session in context")
	}

	oldID := sess.ID
	now := m.now().UTC()
	sess.ID = uuid.NewString()
	sess.UserID = userID
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(m.ttl)

	if err := m.store.Save(ctx, sess); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, oldID); err != nil {
		return err
	}
	return m.setCookie(w, sess, now)
}

// Destroy deletes the request's session and expires the cookie. Calling it
// for an anonymous or already destroyed session is harmless.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter) error {
	if sess, ok := SessionFromContext(ctx); ok {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return err
		}
		sess.UserID = ""
	}
	dropSessionCookie(w)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Sweep removes expired sessions from the store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.Sweep(ctx, m.now())
}

// RequireUser rejects requests whose session is not bound to a user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok || !sess.Authenticated() {
			respond.Error(w, r, apperr.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
