package store

import (
	"context"

	"github.com/isdelr/bookmarks-be/internal/models"
)

const collectionColumns = "id, user_id, name, created_at"

func scanCollection(row scanner) (*models.Collection, error) {
	var c models.Collection
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollections retrieves a user's collections in creation order.
func (s *Store) ListCollections(ctx context.Context, userID string) ([]models.Collection, error) {
	rows, err := s.query(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE user_id = ? ORDER BY created_at ASC, id ASC",
		userID)
	if err != nil {
		return nil, dbError(err, "Collection")
	}
	defer rows.Close()

	collections := []models.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, dbError(err, "Collection")
		}
		collections = append(collections, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "Collection")
	}
	return collections, nil
}

// GetCollection retrieves a single collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	c, err := scanCollection(s.queryRow(ctx, "SELECT "+collectionColumns+" FROM collections WHERE id = ?", id))
	if err != nil {
		return nil, dbError(err, "Collection")
	}
	return c, nil
}

// CreateCollection inserts a new collection.
func (s *Store) CreateCollection(ctx context.Context, c *models.Collection) error {
	_, err := s.exec(ctx,
		"INSERT INTO collections (id, user_id, name, created_at) VALUES (?, ?, ?, ?)",
		c.ID, c.UserID, c.Name, c.CreatedAt)
	return dbError(err, "Collection")
}

// RenameCollection updates a collection's name.
func (s *Store) RenameCollection(ctx context.Context, id, name string) error {
	res, err := s.exec(ctx, "UPDATE collections SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return dbError(err, "Collection")
	}
	return affected(res, "Collection")
}

// DeleteCollection detaches every bookmark in the collection and then
// removes it, in one transaction. It returns the number of bookmarks that
// were moved to uncategorized.
func (s *Store) DeleteCollection(ctx context.Context, id string) (int64, error) {
	var detached int64
	err := s.WithTx(ctx, func(ctx context.Context, tx *Store) error {
		res, err := tx.exec(ctx, "UPDATE bookmarks SET collection_id = NULL WHERE collection_id = ?", id)
		if err != nil {
			return dbError(err, "Collection")
		}
		if detached, err = res.RowsAffected(); err != nil {
			return dbError(err, "Collection")
		}

		res, err = tx.exec(ctx, "DELETE FROM collections WHERE id = ?", id)
		if err != nil {
			return dbError(err, "Collection")
		}
		return affected(res, "Collection")
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}
