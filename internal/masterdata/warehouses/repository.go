package warehouses

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Repository persists warehouses. Create and Update must demote every other
// default warehouse in the same transaction when the written row is default.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	ListActive(ctx context.Context) ([]Warehouse, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	GetDefault(ctx context.Context) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	HasLedgerRows(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the postgres backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const warehouseColumns = `id, name, code, address, phone, contact_person, is_active, is_default, created_at, updated_at`

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.Name, &w.Code, &w.Address, &w.Phone, &w.ContactPerson, &w.IsActive, &w.IsDefault, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, shared.ErrNotFound
	}
	return w, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + warehouseColumns + ` FROM warehouses` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDirection())
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *repository) ListActive(ctx context.Context) ([]Warehouse, error) {
	return r.query(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE is_active ORDER BY name, id`)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	return scanWarehouse(r.pool.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE id=$1`, id))
}

func (r *repository) GetDefault(ctx context.Context) (Warehouse, error) {
	return scanWarehouse(r.pool.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE is_default AND is_active ORDER BY id LIMIT 1`))
}

func (r *repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	var created Warehouse
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if w.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE warehouses SET is_default=FALSE, updated_at=NOW() WHERE is_default`); err != nil {
				return err
			}
		}
		row := tx.QueryRow(ctx, `INSERT INTO warehouses (name, code, address, phone, contact_person, is_active, is_default, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING `+warehouseColumns,
			w.Name, w.Code, w.Address, w.Phone, w.ContactPerson, w.IsActive, w.IsDefault)
		var err error
		created, err = scanWarehouse(row)
		return err
	})
	if err != nil {
		return Warehouse{}, mapWriteError(err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, w Warehouse) (Warehouse, error) {
	var updated Warehouse
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if w.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE warehouses SET is_default=FALSE, updated_at=NOW() WHERE is_default AND id<>$1`, w.ID); err != nil {
				return err
			}
		}
		row := tx.QueryRow(ctx, `UPDATE warehouses SET name=$2, code=$3, address=$4, phone=$5, contact_person=$6, is_active=$7, is_default=$8, updated_at=NOW()
WHERE id=$1 RETURNING `+warehouseColumns,
			w.ID, w.Name, w.Code, w.Address, w.Phone, w.ContactPerson, w.IsActive, w.IsDefault)
		var err error
		updated, err = scanWarehouse(row)
		return err
	})
	if err != nil {
		return Warehouse{}, mapWriteError(err)
	}
	return updated, nil
}

func (r *repository) HasLedgerRows(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM warehouse_stock WHERE warehouse_id=$1)
	OR EXISTS (SELECT 1 FROM stock_transactions WHERE warehouse_id=$1)
	OR EXISTS (SELECT 1 FROM sales WHERE warehouse_id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM warehouses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	if internalshared.IsUniqueViolation(err) {
		return fmt.Errorf("warehouse name or code already exists: %w", shared.ErrDuplicate)
	}
	return err
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "code":
		return "code " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
