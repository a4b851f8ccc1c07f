package store

import (
	"context"
	"database/sql"

	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/database"
	"github.com/isdelr/bookmarks-be/internal/models"
)

const bookmarkColumns = "id, user_id, collection_id, url, title, domain, favicon, memo, created_at"

func scanBookmark(row scanner) (*models.Bookmark, error) {
	var (
		b                       models.Bookmark
		collectionID, fav, memo sql.NullString
	)
	err := row.Scan(&b.ID, &b.UserID, &collectionID, &b.URL, &b.Title, &b.Domain, &fav, &memo, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.CollectionID = nullString(collectionID)
	b.Favicon = nullString(fav)
	b.Memo = nullString(memo)
	return &b, nil
}

// ListBookmarks retrieves a user's bookmarks, newest first, narrowed by filter.
func (s *Store) ListBookmarks(ctx context.Context, userID string, filter models.BookmarkFilter) ([]models.Bookmark, error) {
	query := "SELECT " + bookmarkColumns + " FROM bookmarks WHERE user_id = ?"
	args := []any{userID}
	switch {
	case filter.Uncategorized:
		query += " AND collection_id IS NULL"
	case filter.CollectionID != "":
		query += " AND collection_id = ?"
		args = append(args, filter.CollectionID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "Bookmark")
	}
	defer rows.Close()

	bookmarks := []models.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, dbError(err, "Bookmark")
		}
		bookmarks = append(bookmarks, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Bookmark")
	}
	return bookmarks, nil
}

// GetBookmark retrieves a single bookmark by id.
func (s *Store) GetBookmark(ctx context.Context, id string) (*models.Bookmark, error) {
	b, err := scanBookmark(s.queryRow(ctx, "SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = ?", id))
	if err != nil {
		return nil, dbError(err, "Bookmark")
	}
	return b, nil
}

// CreateBookmark inserts a new bookmark. A collection id that no longer
// exists yields NotFound.
func (s *Store) CreateBookmark(ctx context.Context, b *models.Bookmark) error {
	_, err := s.exec(ctx,
		`INSERT INTO bookmarks (id, user_id, collection_id, url, title, domain, favicon, memo, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.CollectionID, b.URL, b.Title, b.Domain, b.Favicon, b.Memo, b.CreatedAt)
	if database.IsForeignKeyViolation(err) {
		return apperr.NotFound("Collection")
	}
	return dbError(err, "Bookmark")
}

// UpdateBookmark writes the mutable fields (memo, favicon) of b.
func (s *Store) UpdateBookmark(ctx context.Context, b *models.Bookmark) error {
	res, err := s.exec(ctx, "UPDATE bookmarks SET memo = ?, favicon = ? WHERE id = ?", b.Memo, b.Favicon, b.ID)
	if err != nil {
		return dbError(err, "Bookmark")
	}
	return affected(res, "Bookmark")
}

// DeleteBookmark removes a bookmark.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return dbError(err, "Bookmark")
	}
	return affected(res, "Bookmark")
}
