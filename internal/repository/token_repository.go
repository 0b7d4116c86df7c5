package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bookfair/stallhub/internal/model"
)

// TokenRepo persists refresh tokens by their SHA-256 digest.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, t *model.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, is_active, created_at) VALUES (?,?,?,?,?,?)",
		t.ID, t.TokenHash, t.UserID, dbTime(t.ExpiresAt), t.IsActive, dbTime(t.CreatedAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindActiveRefresh returns the active row matching both digest and owner.
// Expiry is not checked here; the caller decides what an expired row means.
func (r *TokenRepo) FindActiveRefresh(ctx context.Context, tokenHash, userID string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, token_hash, user_id, expires_at, is_active, created_at FROM refresh_tokens WHERE token_hash=? AND user_id=? AND is_active=? LIMIT 1",
		tokenHash, userID, true).Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// DeactivateRefresh marks a token inactive.  It reports whether an active
// row was changed; no match is not an error.
func (r *TokenRepo) DeactivateRefresh(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_active=? WHERE token_hash=? AND is_active=?",
		false, tokenHash, true)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeactivateAllForUser revokes all user's active tokens.
func (r *TokenRepo) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_active=? WHERE user_id=? AND is_active=?",
		false, userID, true)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActiveForUser counts the user's active, unexpired sessions.
func (r *TokenRepo) CountActiveForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id=? AND is_active=? AND expires_at > ?",
		userID, true, dbTime(now)).Scan(&n)
	return n, err
}

// PurgeExpired deletes rows whose expiry has passed, active or not.  This is
// the SQL stand-in for a document store's TTL index.
func (r *TokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", dbTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// dbTime normalizes timestamps so both MySQL DATETIME and SQLite's textual
// encoding compare in chronological order.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
