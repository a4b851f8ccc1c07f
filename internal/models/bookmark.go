package models

import "time"

// Bookmark is a saved URL. A nil CollectionID means uncategorized.
// Favicon, once persisted, is always an embedded data:image/ URL.
type Bookmark struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	CollectionID *string   `json:"collectionId"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Domain       string    `json:"domain"`
	Favicon      *string   `json:"favicon"`
	Memo         *string   `json:"memo"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BookmarkFilter narrows a bookmark listing by collection.
type BookmarkFilter struct {
	// Uncategorized selects bookmarks without a collection. It takes
	// precedence over CollectionID.
	Uncategorized bool
	// CollectionID selects a single collection when non-empty.
	CollectionID string
}
