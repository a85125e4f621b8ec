package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates a key that was already claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore tracks client-supplied keys so retried postings
// (issuances, receipts) do not apply twice.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module. A key that is already present
// yields ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO NOTHING`,
		key, module)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases a claimed key so a failed posting can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes keys older than the retention window.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
