package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(ctx context.Context, userID, oldTokenHash string, next *RefreshToken) error
	DeleteByUserAndHash(ctx context.Context, userID, tokenHash string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db, now: time.Now}
}

// HashToken computes the SHA-256 hash of a signed token for storage.
// Token strings are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// NewTokenID returns a fresh refresh token record ID.
func NewTokenID() string {
	return "rt-" + uuid.NewString()
}

// Create inserts a new refresh token. The ID is generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = NewTokenID()
	}

	if _, err := insertToken(ctx, r.db, token, r.now()); err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a refresh token by its SHA-256 hash.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("getting refresh token by hash: %w", err)
	}

	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &t, nil
}

// Rotate consumes the token stored under oldTokenHash and inserts next in a
// single transaction.
//
// The old row must exist, belong to userID and be unexpired; otherwise
// ErrInvalidRefreshToken is returned. An expired row is deleted before the
// error is returned. If inserting next fails the old row survives, so a
// failed rotation never leaves the caller holding a dead session.
//
// Two concurrent rotations of the same token serialize on the write lock;
// the second finds no row and fails.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, userID, oldTokenHash string, next *RefreshToken) error {
	if next.ID == "" {
		next.ID = NewTokenID()
	}
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var id, owner, expiresAt string
	err = tx.QueryRowContext(ctx,
		"SELECT id, user_id, expires_at FROM refresh_tokens WHERE token_hash = ?", oldTokenHash,
	).Scan(&id, &owner, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidRefreshToken
	}
	if err != nil {
		return fmt.Errorf("looking up refresh token: %w", err)
	}
	if owner != userID {
		return ErrInvalidRefreshToken
	}

	exp, _ := time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	if !exp.After(now) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting expired refresh token: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing expired token cleanup: %w", err)
		}
		return fmt.Errorf("%w: expired", ErrInvalidRefreshToken)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("consuming refresh token: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 { //nolint:errcheck // always succeeds on SQLite
		return ErrInvalidRefreshToken
	}

	if _, err := insertToken(ctx, tx, next, now); err != nil {
		return fmt.Errorf("creating rotated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// DeleteByUserAndHash removes the token stored under tokenHash if it belongs
// to userID. It reports whether a row was removed; absence is not an error.
func (r *SQLiteTokenRepository) DeleteByUserAndHash(ctx context.Context, userID, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id = ? AND token_hash = ?", userID, tokenHash)
	if err != nil {
		return false, fmt.Errorf("deleting refresh token: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n > 0, nil
}

// DeleteAllForUser removes every refresh token held by userID.
func (r *SQLiteTokenRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting tokens for user: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// DeleteExpired removes tokens that have expired, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := r.now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, e execer, token *RefreshToken, now time.Time) (sql.Result, error) {
	created := now.UTC().Format(time.RFC3339)
	token.CreatedAt, _ = time.Parse(time.RFC3339, created) //nolint:errcheck // format is controlled

	return e.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.TokenHash,
		token.ExpiresAt.UTC().Format(time.RFC3339), created,
	)
}
