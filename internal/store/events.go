package store

import (
	"context"

	"github.com/isdelr/bookmarks-be/internal/models"
)

// CreateEvent records an audit event.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	_, err := s.exec(ctx,
		"INSERT INTO events (id, type, level, message, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.Type, e.Level, e.Message, e.UserID, e.CreatedAt)
	return dbError(err, "Event")
}

// ListRecentEvents retrieves the most recent events for a user.
func (s *Store) ListRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	rows, err := s.query(ctx,
		`SELECT id, type, level, message, user_id, created_at FROM events
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, dbError(err, "Event")
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Level, &e.Message, &e.UserID, &e.CreatedAt); err != nil {
			return nil, dbError(err, "Event")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Event")
	}
	return events, nil
}
