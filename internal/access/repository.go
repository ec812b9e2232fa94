package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists warehouse grants.
type Repository interface {
	ListGrants(ctx context.Context, userID int64) ([]Grant, error)
	// UpsertGrant inserts or replaces the (user, warehouse) grant. A default
	// grant demotes the user's other defaults in the same transaction.
	UpsertGrant(ctx context.Context, grant Grant) (Grant, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the postgres grant store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const grantColumns = `id, user_id, warehouse_id, is_active, is_default, permission_bits, created_at, updated_at`

func scanGrant(row pgx.Row) (Grant, error) {
	var g Grant
	var bits int64
	if err := row.Scan(&g.ID, &g.UserID, &g.WarehouseID, &g.IsActive, &g.IsDefault, &bits, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return Grant{}, err
	}
	g.Permissions = Permission(bits)
	return g, nil
}

func (r *pgRepository) ListGrants(ctx context.Context, userID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grantColumns+` FROM user_warehouse_access WHERE user_id=$1 ORDER BY warehouse_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpsertGrant(ctx context.Context, g Grant) (Grant, error) {
	var saved Grant
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if g.IsDefault && g.IsActive {
			if _, err := tx.Exec(ctx, `UPDATE user_warehouse_access SET is_default=FALSE, updated_at=NOW()
WHERE user_id=$1 AND warehouse_id<>$2 AND is_default`, g.UserID, g.WarehouseID); err != nil {
				return err
			}
		}
		row := tx.QueryRow(ctx, `INSERT INTO user_warehouse_access (user_id, warehouse_id, is_active, is_default, permission_bits, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
ON CONFLICT (user_id, warehouse_id) DO UPDATE SET is_active=EXCLUDED.is_active, is_default=EXCLUDED.is_default,
	permission_bits=EXCLUDED.permission_bits, updated_at=NOW()
RETURNING `+grantColumns, g.UserID, g.WarehouseID, g.IsActive, g.IsDefault && g.IsActive, int64(g.Permissions))
		var err error
		saved, err = scanGrant(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGrantNotSaved
		}
		return err
	})
	return saved, err
}
