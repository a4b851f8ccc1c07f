package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/auth"
	"github.com/isdelr/bookmarks-be/internal/models"
	"github.com/isdelr/bookmarks-be/internal/services"
)

// BookmarkHandler handles HTTP requests related to bookmarks.
type BookmarkHandler struct {
	service services.BookmarkServiceProvider
}

// NewBookmarkHandler creates a new BookmarkHandler.
func NewBookmarkHandler(service services.BookmarkServiceProvider) *BookmarkHandler {
	return &BookmarkHandler{service: service}
}

// CreateBookmarkPayload defines the structure for bookmark creation. Domain
// is accepted for compatibility and ignored.
type CreateBookmarkPayload struct {
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Domain       string  `json:"domain"`
	Favicon      *string `json:"favicon"`
	Memo         *string `json:"memo"`
	CollectionID *string `json:"collectionId"`
}

// GetAll lists the current user's bookmarks. ?collectionId=null selects
// uncategorized bookmarks, any other non-empty value selects one collection.
func (h *BookmarkHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	var filter models.BookmarkFilter
	switch id := r.URL.Query().Get("collectionId"); id {
	case "":
	case "null":
		filter.Uncategorized = true
	default:
		filter.CollectionID = id
	}

	bookmarks, err := h.service.List(r.Context(), auth.UserID(r.Context()), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, bookmarks)
}

// Create adds a bookmark for the current user.
func (h *BookmarkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload CreateBookmarkPayload
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	bookmark, err := h.service.Create(r.Context(), auth.UserID(r.Context()), services.BookmarkInput{
		URL:          payload.URL,
		Title:        payload.Title,
		Favicon:      payload.Favicon,
		Memo:         payload.Memo,
		CollectionID: payload.CollectionID,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, bookmark)
}

// Update changes the memo and/or favicon of a bookmark owned by the current
// user.
func (h *BookmarkHandler) Update(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	bookmark, err := h.service.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, bookmark)
}

// Delete removes a bookmark owned by the current user.
func (h *BookmarkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, "Bookmark deleted")
}
