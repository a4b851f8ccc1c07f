package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/bookmarks-be/internal/models"
	"github.com/isdelr/bookmarks-be/internal/store"
	"github.com/rs/zerolog/log"
)

// Audit event types.
const (
	EventUserRegister      = "user.register"
	EventUserLogin         = "user.login"
	EventUserLoginFail     = "user.login.fail"
	EventUserEmailVerified = "user.email.verified"
	EventPasswordReset     = "user.password.reset"
	EventOwnershipDenied   = "ownership.denied"
	EventImageBlocked      = "image.blocked"
)

const (
	LevelInfo = "info"
	LevelWarn = "warn"

	defaultEventLimit = 20
	maxEventLimit     = 100
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error)
}

// EventService provides business logic for the audit trail.
type EventService struct {
	store *store.Store
	now   func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(st *store.Store) *EventService {
	return &EventService{store: st, now: time.Now}
}

// CreateEvent records a new event.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error {
	event := &models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	return s.store.CreateEvent(ctx, event)
}

// GetRecentEvents retrieves a user's most recent events. limit is clamped to
// [1, 100] and defaults to 20.
func (s *EventService) GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	return s.store.ListRecentEvents(ctx, userID, limit)
}

// recordEvent writes an audit event. Failures are logged and swallowed so
// auditing never changes the outcome of the request.
func recordEvent(ctx context.Context, events EventServiceProvider, eventType, level, message, userID string) {
	if events == nil {
		return
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	if err := events.CreateEvent(ctx, eventType, level, message, uid); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("Failed to record event")
	}
}
