package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/auth"
	"github.com/isdelr/bookmarks-be/internal/services"
)

var errSessionMissing = errors.New("session middleware did not run")

// CollectionHandler handles HTTP requests related to collections.
type CollectionHandler struct {
	service services.CollectionServiceProvider
}

// NewCollectionHandler creates a new CollectionHandler.
func NewCollectionHandler(service services.CollectionServiceProvider) *CollectionHandler {
	return &CollectionHandler{service: service}
}

// GetAll lists the current user's collections.
func (h *CollectionHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	collections, err := h.service.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, collections)
}

// Create adds a collection for the current user.
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	collection, err := h.service.Create(r.Context(), auth.UserID(r.Context()), payload.Name)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, collection)
}

// Update renames a collection owned by the current user.
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	collection, err := h.service.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, collection)
}

// Delete removes a collection owned by the current user; its bookmarks
// become uncategorized.
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, "Collection deleted")
}
