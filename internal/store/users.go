package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/models"
)

const userColumns = `id, username, email, password_hash, email_verified_at,
	verification_token_hash, reset_token_hash, reset_token_expires_at, created_at`

func scanUser(row scanner) (*models.User, error) {
	var (
		u                     models.User
		verifiedAt, resetExp  sql.NullTime
		verifyHash, resetHash sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &verifiedAt,
		&verifyHash, &resetHash, &resetExp, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.EmailVerifiedAt = &t
	}
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetTokenExpiresAt = &t
	}
	u.VerificationTokenHash = nullString(verifyHash)
	u.ResetTokenHash = nullString(resetHash)
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" = ?", arg))
	if err != nil {
		return nil, dbError(err, "User")
	}
	return u, nil
}

// CreateUser inserts a new user. A taken username or email yields
// DuplicateIdentity.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, verification_token_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.VerificationTokenHash, u.CreatedAt)
	return dbError(err, "User")
}

// GetUserByID retrieves a single user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByUsername retrieves a single user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username", username)
}

// GetUserByEmail retrieves a single user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", email)
}

// GetUserByVerificationTokenHash finds the user holding an email
// verification token.
func (s *Store) GetUserByVerificationTokenHash(ctx context.Context, hash string) (*models.User, error) {
	return s.getUser(ctx, "verification_token_hash", hash)
}

// GetUserByResetTokenHash finds the user holding a password reset token.
// Expiry is not checked here.
func (s *Store) GetUserByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	return s.getUser(ctx, "reset_token_hash", hash)
}

// SetVerificationToken replaces the user's email verification token hash.
func (s *Store) SetVerificationToken(ctx context.Context, userID string, hash *string) error {
	res, err := s.exec(ctx, "UPDATE users SET verification_token_hash = ? WHERE id = ?", hash, userID)
	if err != nil {
		return dbError(err, "User")
	}
	return affected(res, "User")
}

// MarkEmailVerified consumes the verification token. It reports
// InvalidToken when the token was already used by a concurrent request.
func (s *Store) MarkEmailVerified(ctx context.Context, userID, tokenHash string, at time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE users SET email_verified_at = ?, verification_token_hash = NULL
		 WHERE id = ? AND verification_token_hash = ?`,
		at, userID, tokenHash)
	if err != nil {
		return dbError(err, "User")
	}
	if err := affected(res, "User"); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrInvalidToken
		}
		return err
	}
	return nil
}

// SetResetToken stores a password reset token hash and its expiry.
func (s *Store) SetResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	res, err := s.exec(ctx,
		"UPDATE users SET reset_token_hash = ?, reset_token_expires_at = ? WHERE id = ?",
		hash, expiresAt, userID)
	if err != nil {
		return dbError(err, "User")
	}
	return affected(res, "User")
}

// ConsumeResetToken replaces the password and invalidates the reset token in
// one statement, so a token can only ever be redeemed once and never after
// its expiry.
func (s *Store) ConsumeResetToken(ctx context.Context, userID, tokenHash, passwordHash string, now time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE users SET password_hash = ?, reset_token_hash = NULL, reset_token_expires_at = NULL
		 WHERE id = ? AND reset_token_hash = ? AND reset_token_expires_at > ?`,
		passwordHash, userID, tokenHash, now)
	if err != nil {
		return dbError(err, "User")
	}
	if err := affected(res, "User"); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrInvalidOrExpiredToken
		}
		return err
	}
	return nil
}

// ClearExpiredResetTokens drops reset tokens whose expiry is before now.
func (s *Store) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE users SET reset_token_hash = NULL, reset_token_expires_at = NULL
		 WHERE reset_token_expires_at IS NOT NULL AND reset_token_expires_at < ?`,
		now)
	if err != nil {
		return 0, dbError(err, "User")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err, "User")
	}
	return n, nil
}
