package stockcheck

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// PGRepository stores checks in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx wraps callback in a ledger transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const checkColumns = `id, name, description, warehouse_id, status, created_by, approved_by, approved_at, completed_at, created_at, updated_at`

func scanCheck(row pgx.Row) (Check, error) {
	var c Check
	var status string
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.WarehouseID, &status, &c.CreatedBy,
		&c.ApprovedBy, &c.ApprovedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Check{}, ErrNotFound
	}
	c.Status = Status(status)
	return c, err
}

const itemColumns = `id, check_id, product_id, system_quantity, actual_quantity, difference, notes, checked_by, checked_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CheckID, &it.ProductID, &it.SystemQuantity, &it.ActualQuantity,
		&it.Difference, &it.Notes, &it.CheckedBy, &it.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, checkID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM inventory_check_items WHERE check_id=$1 ORDER BY product_id`, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepo) InsertCheck(ctx context.Context, c Check) (Check, error) {
	return scanCheck(r.tx.QueryRow(ctx, `INSERT INTO inventory_checks (name, description, warehouse_id, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING `+checkColumns,
		c.Name, c.Description, c.WarehouseID, string(c.Status), c.CreatedBy))
}

func (r *txRepo) GetCheckForUpdate(ctx context.Context, id int64) (Check, error) {
	c, err := scanCheck(r.tx.QueryRow(ctx, `SELECT `+checkColumns+` FROM inventory_checks WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Check{}, err
	}
	c.Items, err = listItems(ctx, r.tx, id)
	return c, err
}

func (r *txRepo) UpdateCheck(ctx context.Context, c Check) (Check, error) {
	return scanCheck(r.tx.QueryRow(ctx, `UPDATE inventory_checks SET status=$2, approved_by=$3, approved_at=$4, completed_at=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+checkColumns,
		c.ID, string(c.Status), c.ApprovedBy, c.ApprovedAt, c.CompletedAt))
}

func (r *txRepo) InsertCheckItems(ctx context.Context, checkID int64, items []Item) ([]Item, error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO inventory_check_items (check_id, product_id, system_quantity, notes)
VALUES ($1,$2,$3,'') RETURNING `+itemColumns, checkID, it.ProductID, it.SystemQuantity)
	}
	results := r.tx.SendBatch(ctx, batch)
	defer results.Close()
	out := make([]Item, 0, len(items))
	for range items {
		it, err := scanItem(results.QueryRow())
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *txRepo) UpdateCheckItem(ctx context.Context, it Item) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `UPDATE inventory_check_items SET actual_quantity=$2, difference=$3, notes=$4, checked_by=$5, checked_at=$6
WHERE id=$1 RETURNING `+itemColumns,
		it.ID, it.ActualQuantity, it.Difference, it.Notes, it.CheckedBy, it.CheckedAt))
}

func (r *txRepo) StockQuantities(ctx context.Context, warehouseID int64) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, quantity FROM warehouse_stock WHERE warehouse_id=$1`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

func (r *PGRepository) GetCheck(ctx context.Context, id int64) (Check, error) {
	c, err := scanCheck(r.pool.QueryRow(ctx, `SELECT `+checkColumns+` FROM inventory_checks WHERE id=$1`, id))
	if err != nil {
		return Check{}, err
	}
	c.Items, err = listItems(ctx, r.pool, id)
	return c, err
}

func (r *PGRepository) ListChecks(ctx context.Context, scope access.Scope, filter ListFilter) ([]Check, int, error) {
	clause, args := scope.Clause("warehouse_id", 1)
	conds := []string{clause}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_checks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+checkColumns+` FROM inventory_checks`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
