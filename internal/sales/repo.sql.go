package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/access"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// PGRepository provides PostgreSQL backed persistence for sales.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
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

const saleColumns = `id, status, warehouse_id, total_amount, discount_amount, deposit_amount, final_amount,
	payment_method, operator_id, remark, created_at, updated_at, completed_at, deleted_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var status, method string
	err := row.Scan(&s.ID, &status, &s.WarehouseID, &s.TotalAmount, &s.DiscountAmount, &s.DepositAmount, &s.FinalAmount,
		&method, &s.OperatorID, &s.Remark, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt, &s.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	s.Status, s.PaymentMethod = Status(status), PaymentMethod(method)
	return s, err
}

const itemColumns = `id, sale_id, product_id, quantity, price, actual_price, subtotal, sale_type, stock_committed, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var saleType string
	err := row.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.Price, &it.ActualPrice, &it.Subtotal, &saleType, &it.StockCommitted, &it.CreatedAt)
	it.SaleType = SaleType(saleType)
	return it, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q querier, saleID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id=$1 ORDER BY product_id, id`, saleID)
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

func (r *txRepo) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	return scanSale(r.tx.QueryRow(ctx, `INSERT INTO sales (status, warehouse_id, total_amount, discount_amount, deposit_amount, final_amount,
	payment_method, operator_id, remark, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW(),$10) RETURNING `+saleColumns,
		string(s.Status), s.WarehouseID, s.TotalAmount, s.DiscountAmount, s.DepositAmount, s.FinalAmount,
		string(s.PaymentMethod), s.OperatorID, s.Remark, s.CompletedAt))
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = listItems(ctx, r.tx, id)
	return sale, err
}

func (r *txRepo) UpdateSale(ctx context.Context, s Sale) (Sale, error) {
	return scanSale(r.tx.QueryRow(ctx, `UPDATE sales SET status=$2, total_amount=$3, discount_amount=$4, deposit_amount=$5, final_amount=$6,
	payment_method=$7, remark=$8, completed_at=$9, deleted_at=$10, updated_at=NOW()
WHERE id=$1 RETURNING `+saleColumns,
		s.ID, string(s.Status), s.TotalAmount, s.DiscountAmount, s.DepositAmount, s.FinalAmount,
		string(s.PaymentMethod), s.Remark, s.CompletedAt, s.DeletedAt))
}

func (r *txRepo) InsertSaleItem(ctx context.Context, it Item) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, price, actual_price, subtotal, sale_type, stock_committed, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING `+itemColumns,
		it.SaleID, it.ProductID, it.Quantity, it.Price, it.ActualPrice, it.Subtotal, string(it.SaleType), it.StockCommitted))
}

func (r *txRepo) SetSaleItemCommitted(ctx context.Context, itemID int64, committed bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sale_items SET stock_committed=$2 WHERE id=$1`, itemID, committed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) DeleteSaleItem(ctx context.Context, itemID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM sale_items WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PGRepository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = listItems(ctx, r.pool, id)
	return sale, err
}

func saleWhere(scope access.Scope, status Status, includeDeleted bool, from, to time.Time) (string, []any) {
	clause, args := scope.Clause("warehouse_id", 1)
	conds := []string{clause}
	if status != "" {
		args = append(args, string(status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	} else if !includeDeleted {
		conds = append(conds, "status <> 'DELETED'")
	}
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, "created_at < $"+strconv.Itoa(len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PGRepository) ListSales(ctx context.Context, scope access.Scope, filter ListFilter) ([]Sale, int, error) {
	where, args := saleWhere(scope, filter.Status, filter.IncludeDeleted, filter.From, filter.To)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize()
	args = append(args, page.Limit(), page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// SummaryFacts runs each aggregate independently. A failed part is left at
// its zero value and its error is joined into the result, so callers can
// report the parts that did succeed.
func (r *PGRepository) SummaryFacts(ctx context.Context, scope access.Scope, filter SummaryFilter) (SummaryFacts, error) {
	facts := SummaryFacts{RevenueByType: map[SaleType]decimal.Decimal{}, Counts: map[Status]int{}}
	where, args := saleWhere(scope, "", true, filter.From, filter.To)

	revenue, revErr := r.revenueByType(ctx, where, args)
	if revErr == nil {
		facts.RevenueByType = revenue
	}
	var discount, forfeited decimal.Decimal
	totalsErr := r.pool.QueryRow(ctx, `SELECT
	COALESCE(SUM(discount_amount) FILTER (WHERE status = 'COMPLETED'), 0),
	COALESCE(SUM(deposit_amount) FILTER (WHERE status = 'ABANDONED'), 0)
FROM sales`+where, args...).Scan(&discount, &forfeited)
	if totalsErr == nil {
		facts.Discount, facts.ForfeitedDeposits = discount, forfeited
	}
	counts, countErr := r.statusCounts(ctx, where, args)
	if countErr == nil {
		facts.Counts = counts
	}
	return facts, errors.Join(revErr, totalsErr, countErr)
}

func (r *PGRepository) revenueByType(ctx context.Context, where string, args []any) (map[SaleType]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.sale_type, COALESCE(SUM(i.subtotal), 0) FROM sale_items i
JOIN (SELECT id FROM sales`+where+` AND status = 'COMPLETED') s ON s.id = i.sale_id
GROUP BY i.sale_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("sales summary revenue: %w", err)
	}
	defer rows.Close()
	out := map[SaleType]decimal.Decimal{}
	for rows.Next() {
		var saleType string
		var amount decimal.Decimal
		if err := rows.Scan(&saleType, &amount); err != nil {
			return nil, fmt.Errorf("sales summary revenue: %w", err)
		}
		out[SaleType(saleType)] = amount
	}
	return out, rows.Err()
}

func (r *PGRepository) statusCounts(ctx context.Context, where string, args []any) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM sales`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("sales summary counts: %w", err)
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("sales summary counts: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
