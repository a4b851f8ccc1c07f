package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/auth"
	"github.com/isdelr/bookmarks-be/internal/services"
)

// EventHandler serves the current user's audit trail.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get recent activity/events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			respond.Error(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	events, err := h.service.GetRecentEvents(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, events)
}
