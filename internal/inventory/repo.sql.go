package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// PGRepository persists the ledger in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository exposes the ledger statements on an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx runs fn in a READ COMMITTED transaction so row locks re-read the
// latest committed version instead of failing serialization.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const stockColumns = `id, product_id, warehouse_id, quantity, warning_level, created_at, updated_at`

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ID, &s.ProductID, &s.WarehouseID, &s.Quantity, &s.WarningLevel, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return s, err
}

const transactionColumns = `id, product_id, warehouse_id, type, quantity, direction, operator_id, metadata, notes, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var meta []byte
	var typ string
	if err := row.Scan(&t.ID, &t.ProductID, &t.WarehouseID, &typ, &t.Quantity, &t.Direction, &t.OperatorID, &meta, &t.Notes, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	t.Type = TransactionType(typ)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode ledger metadata: %w", err)
		}
	}
	return t, nil
}

func (r *txRepo) GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (Stock, error) {
	stock, err := scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM warehouse_stock
WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID))
	if shared.IsLockContention(err) {
		return Stock{}, fmt.Errorf("%w: %v", ErrStockBusy, err)
	}
	return stock, err
}

func (r *txRepo) CreateStock(ctx context.Context, productID, warehouseID, warningLevel int64) (Stock, error) {
	// A unique violation aborts the enclosing transaction unless it happens
	// under a savepoint.
	var stock Stock
	err := db.Savepoint(ctx, r.tx, func(sp pgx.Tx) error {
		var err error
		stock, err = scanStock(sp.QueryRow(ctx, `INSERT INTO warehouse_stock (product_id, warehouse_id, quantity, warning_level, created_at, updated_at)
VALUES ($1,$2,0,$3,NOW(),NOW()) RETURNING `+stockColumns, productID, warehouseID, warningLevel))
		return err
	})
	if shared.IsUniqueViolation(err) {
		return Stock{}, ErrStockExists
	}
	if err != nil {
		return Stock{}, err
	}
	return stock, nil
}

func (r *txRepo) UpdateStockQuantity(ctx context.Context, stockID, quantity int64) (Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `UPDATE warehouse_stock SET quantity=$2, updated_at=NOW() WHERE id=$1 RETURNING `+stockColumns, stockID, quantity))
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return Transaction{}, err
	}
	return scanTransaction(r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (product_id, warehouse_id, type, quantity, direction, operator_id, metadata, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING `+transactionColumns,
		t.ProductID, t.WarehouseID, string(t.Type), t.Quantity, t.Direction, t.OperatorID, meta, t.Notes))
}

func (r *txRepo) InsertOperationLog(ctx context.Context, log shared.OperationLog) (int64, error) {
	return shared.InsertOperationLog(ctx, r.tx, log)
}

func (r *PGRepository) GetStock(ctx context.Context, productID, warehouseID int64) (Stock, error) {
	return scanStock(r.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM warehouse_stock WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID))
}

func (r *PGRepository) ListStock(ctx context.Context, scope access.Scope, filter StockFilter) ([]Stock, int, error) {
	clause, args := scope.Clause("warehouse_id", 1)
	conds := []string{clause}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, "product_id = $"+strconv.Itoa(len(args)))
	}
	if filter.LowStockOnly {
		conds = append(conds, "quantity <= warning_level")
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouse_stock`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM warehouse_stock`+where+
		` ORDER BY warehouse_id, product_id LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) ListTransactions(ctx context.Context, scope access.Scope, filter TransactionFilter) ([]Transaction, int, error) {
	clause, args := scope.Clause("warehouse_id", 1)
	conds := []string{clause}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, "product_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, "type = $"+strconv.Itoa(len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, "created_at < $"+strconv.Itoa(len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM stock_transactions`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) SetWarningLevel(ctx context.Context, productID, warehouseID, level int64) (Stock, error) {
	return scanStock(r.pool.QueryRow(ctx, `INSERT INTO warehouse_stock (product_id, warehouse_id, quantity, warning_level, created_at, updated_at)
VALUES ($1,$2,0,$3,NOW(),NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET warning_level=EXCLUDED.warning_level, updated_at=NOW()
RETURNING `+stockColumns, productID, warehouseID, level))
}

var _ Repository = (*PGRepository)(nil)
