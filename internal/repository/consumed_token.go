package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrTokenConsumed = errors.New("token already consumed")

// ConsumedTokenRepository records the IDs of single-use tokens that have
// been redeemed.
type ConsumedTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewConsumedTokenRepository creates a new ConsumedTokenRepository.
func NewConsumedTokenRepository(db *sql.DB) *ConsumedTokenRepository {
	return &ConsumedTokenRepository{db: db, now: utcNow}
}

// Consume marks jti as used. The primary key makes the check and the mark a
// single step: the second caller for the same jti gets ErrTokenConsumed.
func (r *ConsumedTokenRepository) Consume(ctx context.Context, jti string, expiresAt time.Time) error {
	query := `INSERT INTO consumed_tokens (jti, expires_at, consumed_at) VALUES (?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, jti, expiresAt.UTC(), r.now()); err != nil {
		if isDuplicateEntryError(err) {
			return ErrTokenConsumed
		}
		return fmt.Errorf("consume token: %w", err)
	}
	return nil
}

// PurgeExpired deletes records for tokens that have expired by now. Those
// tokens fail verification on their own, so the records are no longer needed.
func (r *ConsumedTokenRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM consumed_tokens WHERE expires_at < ?`, r.now())
	if err != nil {
		return 0, fmt.Errorf("purge consumed tokens: %w", err)
	}
	return result.RowsAffected()
}
