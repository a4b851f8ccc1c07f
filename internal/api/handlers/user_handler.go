package handlers

import (
	"context"
	"net/http"

	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/auth"
	"github.com/isdelr/bookmarks-be/internal/services"
	"github.com/rs/zerolog/hlog"
)

// SessionManager binds and unbinds users on the current session.
type SessionManager interface {
	Establish(ctx context.Context, w http.ResponseWriter, userID string) error
	Destroy(ctx context.Context, w http.ResponseWriter) error
}

// UserHandler handles authentication and account recovery requests.
type UserHandler struct {
	service  services.UserServiceProvider
	sessions SessionManager
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, sessions SessionManager) *UserHandler {
	return &UserHandler{service: service, sessions: sessions}
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordPayload defines the structure for password reset requests.
type ResetPasswordPayload struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// CSRFToken returns the anti-forgery token of the current session.
func (h *UserHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		respond.Error(w, r, apperr.Internal(errSessionMissing))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"csrfToken": sess.CSRFToken})
}

// Register handles new user registration and logs the new user in.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.sessions.Establish(r.Context(), w, user.ID); err != nil {
		respond.Error(w, r, apperr.Internal(err))
		return
	}

	respond.JSON(w, http.StatusCreated, user.Public())
}

// Login handles user authentication.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.service.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.sessions.Establish(r.Context(), w, user.ID); err != nil {
		respond.Error(w, r, apperr.Internal(err))
		return
	}

	hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("User logged in")
	respond.JSON(w, http.StatusOK, user.Public())
}

// Logout destroys the current session.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w); err != nil {
		respond.Error(w, r, apperr.Internal(err))
		return
	}
	respond.Message(w, "Logged out")
}

// GetMe returns the currently authenticated user.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, user.Public())
}

// VerifyEmail redeems the token from a verification link.
func (h *UserHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{
		"message":  "Email verified",
		"username": user.Username,
	})
}

// RequestPasswordReset answers identically whether or not the email is
// registered.
func (h *UserHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), payload.Email); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, "If an account exists for that email, a password reset link has been sent")
}

// ResetPassword sets a new password using a reset token.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload ResetPasswordPayload
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload.Token, payload.NewPassword); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, "Password has been reset")
}
