package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/models"
	"github.com/isdelr/bookmarks-be/internal/store"
	"github.com/rs/zerolog/log"
)

// CollectionServiceProvider defines the interface for collection services.
type CollectionServiceProvider interface {
	List(ctx context.Context, userID string) ([]models.Collection, error)
	Create(ctx context.Context, userID, name string) (*models.Collection, error)
	Update(ctx context.Context, userID, id string, patch Patch) (*models.Collection, error)
	Delete(ctx context.Context, userID, id string) error
}

// CollectionService manages collections on behalf of their owners.
type CollectionService struct {
	store  *store.Store
	events EventServiceProvider
	now    func() time.Time
}

// NewCollectionService creates a new CollectionService.
func NewCollectionService(st *store.Store, events EventServiceProvider) *CollectionService {
	return &CollectionService{store: st, events: events, now: time.Now}
}

// List returns the user's collections, oldest first.
func (s *CollectionService) List(ctx context.Context, userID string) ([]models.Collection, error) {
	return s.store.ListCollections(ctx, userID)
}

// Create adds a collection owned by userID.
func (s *CollectionService) Create(ctx context.Context, userID, name string) (*models.Collection, error) {
	name, err := validateCollectionName(name)
	if err != nil {
		return nil, err
	}

	collection := &models.Collection{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateCollection(ctx, collection); err != nil {
		return nil, err
	}
	return collection, nil
}

// Update renames a collection. name is the only mutable field; other keys
// in the patch are ignored.
func (s *CollectionService) Update(ctx context.Context, userID, id string, patch Patch) (*models.Collection, error) {
	var updated *models.Collection
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		collection, err := ownedCollection(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		raw, ok, err := patch.String("name")
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("Collection name is required")
		}
		name, err := validateCollectionName(raw)
		if err != nil {
			return err
		}

		if err := tx.RenameCollection(ctx, id, name); err != nil {
			return err
		}
		collection.Name = name
		updated = collection
		return nil
	})
	if err != nil {
		s.auditDenied(ctx, err, userID, id)
		return nil, err
	}
	return updated, nil
}

// Delete removes a collection after moving its bookmarks to uncategorized.
func (s *CollectionService) Delete(ctx context.Context, userID, id string) error {
	var detached int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		if _, err := ownedCollection(ctx, tx, userID, id); err != nil {
			return err
		}
		var err error
		detached, err = tx.DeleteCollection(ctx, id)
		return err
	})
	if err != nil {
		s.auditDenied(ctx, err, userID, id)
		return err
	}

	log.Info().Str("user_id", userID).Str("collection_id", id).Int64("detached", detached).Msg("Collection deleted")
	return nil
}

func (s *CollectionService) auditDenied(ctx context.Context, err error, userID, id string) {
	if errors.Is(err, apperr.ErrForbidden) {
		log.Warn().Str("user_id", userID).Str("collection_id", id).Msg("Ownership check failed")
		recordEvent(ctx, s.events, EventOwnershipDenied, LevelWarn, "Collection "+id+" belongs to another user", userID)
	}
}

// ownedCollection loads a collection and checks that userID owns it.
func ownedCollection(ctx context.Context, st *store.Store, userID, id string) (*models.Collection, error) {
	collection, err := st.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if collection.UserID != userID {
		return nil, apperr.Forbidden()
	}
	return collection, nil
}
