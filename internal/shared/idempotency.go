package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxIdempotencyKeyLen bounds client supplied keys.
const MaxIdempotencyKeyLen = 128

// ErrIdempotencyConflict reports a key that was already claimed in its scope.
var ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", ErrConflict)

// IdempotencyKey scopes a client key to the module that claims it.
func IdempotencyKey(module, key string) (string, error) {
	module = strings.TrimSpace(module)
	key = strings.TrimSpace(key)
	switch {
	case module == "":
		return "", fmt.Errorf("%w: idempotency module required", ErrValidation)
	case key == "":
		return "", fmt.Errorf("%w: idempotency key required", ErrValidation)
	case len(key) > MaxIdempotencyKeyLen:
		return "", fmt.Errorf("%w: idempotency key longer than %d bytes", ErrValidation, MaxIdempotencyKeyLen)
	}
	return module + ":" + key, nil
}

// IdempotencyStore claims request keys in the idempotency_keys table. A claim
// is released when the guarded write fails so the client may retry.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// CheckAndInsert claims key within module or returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not initialised")
	}
	scoped, err := IdempotencyKey(module, key)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`, scoped, module, s.now().UTC())
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Delete releases a claim. Releasing an unknown key is not an error.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	scoped, err := IdempotencyKey(module, key)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, scoped)
	return err
}

// Cleanup removes claims older than olderThan and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrValidation)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
