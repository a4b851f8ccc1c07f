package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/imagefetch"
	"github.com/isdelr/bookmarks-be/internal/models"
	"github.com/isdelr/bookmarks-be/internal/store"
	"github.com/rs/zerolog/log"
)

// ImageFetcher turns a remote image URL into a data: URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// BookmarkInput is the payload for creating a bookmark. Domain is always
// derived from URL; a client-supplied domain is not accepted.
type BookmarkInput struct {
	URL          string
	Title        string
	Favicon      *string
	Memo         *string
	CollectionID *string
}

// BookmarkServiceProvider defines the interface for bookmark services.
type BookmarkServiceProvider interface {
	List(ctx context.Context, userID string, filter models.BookmarkFilter) ([]models.Bookmark, error)
	Create(ctx context.Context, userID string, in BookmarkInput) (*models.Bookmark, error)
	Update(ctx context.Context, userID, id string, patch Patch) (*models.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
}

// BookmarkService manages bookmarks on behalf of their owners and resolves
// favicons through the image guard before anything is written.
type BookmarkService struct {
	store   *store.Store
	fetcher ImageFetcher
	events  EventServiceProvider
	now     func() time.Time
}

// NewBookmarkService creates a new BookmarkService.
func NewBookmarkService(st *store.Store, fetcher ImageFetcher, events EventServiceProvider) *BookmarkService {
	return &BookmarkService{store: st, fetcher: fetcher, events: events, now: time.Now}
}

// List returns the user's bookmarks, newest first.
func (s *BookmarkService) List(ctx context.Context, userID string, filter models.BookmarkFilter) ([]models.Bookmark, error) {
	return s.store.ListBookmarks(ctx, userID, filter)
}

// Create validates in, resolves its favicon and stores the bookmark.
func (s *BookmarkService) Create(ctx context.Context, userID string, in BookmarkInput) (*models.Bookmark, error) {
	rawURL := strings.TrimSpace(in.URL)
	domain, err := domainOf(rawURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = domain
	}

	collectionID := in.CollectionID
	if collectionID != nil && *collectionID == "" {
		collectionID = nil
	}
	if collectionID != nil {
		if _, err := ownedCollection(ctx, s.store, userID, *collectionID); err != nil {
			s.auditDenied(ctx, err, userID, "collection", *collectionID)
			return nil, err
		}
	}

	favicon, err := s.resolveFavicon(ctx, userID, in.Favicon)
	if err != nil {
		return nil, err
	}

	bookmark := &models.Bookmark{
		ID:           uuid.New().String(),
		UserID:       userID,
		CollectionID: collectionID,
		URL:          rawURL,
		Title:        title,
		Domain:       domain,
		Favicon:      favicon,
		Memo:         emptyToNil(in.Memo),
		CreatedAt:    s.now().UTC(),
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		// The collection may have been deleted while the favicon was fetched.
		if collectionID != nil {
			if _, err := ownedCollection(ctx, tx, userID, *collectionID); err != nil {
				return err
			}
		}
		return tx.CreateBookmark(ctx, bookmark)
	})
	if err != nil {
		return nil, err
	}
	return bookmark, nil
}

// Update changes memo and/or favicon. Other keys in the patch are ignored;
// an explicit null clears the field.
func (s *BookmarkService) Update(ctx context.Context, userID, id string, patch Patch) (*models.Bookmark, error) {
	if _, err := ownedBookmark(ctx, s.store, userID, id); err != nil {
		s.auditDenied(ctx, err, userID, "bookmark", id)
		return nil, err
	}

	memo, setMemo, err := patch.NullableString("memo")
	if err != nil {
		return nil, err
	}
	rawFavicon, setFavicon, err := patch.NullableString("favicon")
	if err != nil {
		return nil, err
	}

	var favicon *string
	if setFavicon {
		if favicon, err = s.resolveFavicon(ctx, userID, rawFavicon); err != nil {
			return nil, err
		}
	}

	var updated *models.Bookmark
	err = s.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		bookmark, err := ownedBookmark(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if !setMemo && !setFavicon {
			updated = bookmark
			return nil
		}
		if setMemo {
			bookmark.Memo = emptyToNil(memo)
		}
		if setFavicon {
			bookmark.Favicon = favicon
		}
		if err := tx.UpdateBookmark(ctx, bookmark); err != nil {
			return err
		}
		updated = bookmark
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a bookmark owned by userID.
func (s *BookmarkService) Delete(ctx context.Context, userID, id string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		if _, err := ownedBookmark(ctx, tx, userID, id); err != nil {
			return err
		}
		return tx.DeleteBookmark(ctx, id)
	})
	if err != nil {
		s.auditDenied(ctx, err, userID, "bookmark", id)
	}
	return err
}

// ownedBookmark loads a bookmark and checks that userID owns it.
func ownedBookmark(ctx context.Context, st *store.Store, userID, id string) (*models.Bookmark, error) {
	bookmark, err := st.GetBookmark(ctx, id)
	if err != nil {
		return nil, err
	}
	if bookmark.UserID != userID {
		return nil, apperr.Forbidden()
	}
	return bookmark, nil
}

func (s *BookmarkService) auditDenied(ctx context.Context, err error, userID, kind, id string) {
	if errors.Is(err, apperr.ErrForbidden) {
		log.Warn().Str("user_id", userID).Str(kind+"_id", id).Msg("Ownership check failed")
		recordEvent(ctx, s.events, EventOwnershipDenied, LevelWarn, kind+" "+id+" belongs to another user", userID)
	}
}

// resolveFavicon normalises a client favicon value into what is stored: nil,
// an embedded image kept as sent, or a remote image fetched through the guard.
func (s *BookmarkService) resolveFavicon(ctx context.Context, userID string, raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	switch {
	case value == "":
		return nil, nil
	case imagefetch.IsDataImage(value):
		return &value, nil
	case imagefetch.IsHTTPURL(value):
		dataURL, err := s.fetcher.Fetch(ctx, value)
		if err != nil {
			ev := log.Warn().Err(err).Str("user_id", userID)
			if errors.Is(err, imagefetch.ErrBlockedHost) {
				ev.Msg("Blocked favicon fetch to internal host")
				recordEvent(ctx, s.events, EventImageBlocked, LevelWarn, "Favicon URL pointed at a blocked host", userID)
			} else {
				ev.Msg("Failed to fetch favicon")
			}
			return nil, apperr.ImageFetchFailed(err)
		}
		return &dataURL, nil
	default:
		return nil, apperr.Validation("Favicon must be an http(s) URL or an embedded image")
	}
}

// domainOf returns the lower-cased host of an absolute URL.
func domainOf(rawURL string) (string, error) {
	if rawURL == "" {
		return "", apperr.ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return "", apperr.ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", apperr.ErrInvalidURL
	}
	return host, nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
