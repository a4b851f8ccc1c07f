package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/mail"
	"github.com/isdelr/bookmarks-be/internal/models"
	"github.com/isdelr/bookmarks-be/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// DefaultResetTokenTTL bounds how long a password reset link stays valid.
const DefaultResetTokenTTL = time.Hour

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
}

// UserServiceConfig configures a UserService.
type UserServiceConfig struct {
	// BaseURL is the public address of the web app, used in email links.
	BaseURL       string
	BcryptCost    int
	ResetTokenTTL time.Duration
	Now           func() time.Time
}

// UserService provides registration, login and account recovery.
type UserService struct {
	store     *store.Store
	mailer    mail.Sender
	events    EventServiceProvider
	baseURL   string
	cost      int
	resetTTL  time.Duration
	now       func() time.Time
	dummyHash []byte
}

// NewUserService creates a new UserService.
func NewUserService(st *store.Store, mailer mail.Sender, events EventServiceProvider, cfg UserServiceConfig) (*UserService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = DefaultResetTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Compared against when a username is unknown, so a miss costs the same
	// as a wrong password.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &UserService{
		store:     st,
		mailer:    mailer,
		events:    events,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		cost:      cfg.BcryptCost,
		resetTTL:  cfg.ResetTokenTTL,
		now:       cfg.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates a new account and sends an email verification link.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if err := s.checkAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	token, digest, err := newToken()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &models.User{
		ID:                    uuid.New().String(),
		Username:              username,
		Email:                 email,
		PasswordHash:          string(hashedPassword),
		VerificationTokenHash: &digest,
		CreatedAt:             s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	recordEvent(ctx, s.events, EventUserRegister, LevelInfo, "Account created", user.ID)

	msg, err := mail.VerificationEmail(user.Email, user.Username, s.baseURL+"/verify-email?token="+token)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to send verification email")
	}

	return user, nil
}

// checkAvailable reports which identity is taken. The unique indexes still
// catch a concurrent registration that slips past it.
func (s *UserService) checkAvailable(ctx context.Context, username, email string) error {
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return apperr.DuplicateIdentity("Username is already taken")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return apperr.DuplicateIdentity("Email is already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

// Login verifies credentials. Unknown usernames and wrong passwords fail
// with the same error.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		log.Warn().Str("username", username).Msg("Failed authentication attempt")
		return nil, apperr.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn().Str("user_id", user.ID).Msg("Failed authentication attempt")
		recordEvent(ctx, s.events, EventUserLoginFail, LevelWarn, "Wrong password", user.ID)
		return nil, apperr.ErrInvalidCredentials
	}

	recordEvent(ctx, s.events, EventUserLogin, LevelInfo, "Logged in", user.ID)
	return user, nil
}

// CurrentUser returns the user bound to a session.
func (s *UserService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	return user, err
}

// RequestPasswordReset mails a reset link if the address belongs to an
// account. It reports success either way, even for a malformed address.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		log.Info().Msg("Password reset requested for malformed email")
		return nil
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Info().Msg("Password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, digest, err := newToken()
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.SetResetToken(ctx, user.ID, digest, s.now().UTC().Add(s.resetTTL)); err != nil {
		return err
	}

	msg, err := mail.PasswordResetEmail(user.Email, user.Username, s.baseURL+"/reset-password?token="+token)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to send password reset email")
	}
	return nil
}

// ResetPassword redeems a reset token and replaces the password.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		return apperr.ErrInvalidOrExpiredToken
	}

	digest := hashToken(token)
	user, err := s.store.GetUserByResetTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrInvalidOrExpiredToken
		}
		return err
	}
	if user.ResetTokenExpiresAt == nil || !user.ResetTokenExpiresAt.After(s.now()) {
		log.Warn().Str("user_id", user.ID).Msg("Expired password reset token presented")
		return apperr.ErrInvalidOrExpiredToken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.ConsumeResetToken(ctx, user.ID, digest, string(hashedPassword), s.now().UTC()); err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID).Msg("Password reset")
	recordEvent(ctx, s.events, EventPasswordReset, LevelInfo, "Password reset via email link", user.ID)
	return nil
}

// VerifyEmail redeems an email verification token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperr.ErrInvalidToken
	}

	digest := hashToken(token)
	user, err := s.store.GetUserByVerificationTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, err
	}

	now := s.now().UTC()
	if err := s.store.MarkEmailVerified(ctx, user.ID, digest, now); err != nil {
		return nil, err
	}
	user.EmailVerifiedAt = &now
	user.VerificationTokenHash = nil

	recordEvent(ctx, s.events, EventUserEmailVerified, LevelInfo, "Email address verified", user.ID)
	return user, nil
}
