package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource runs the category queries against PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

type categoryQuery struct {
	sql     string
	orderBy string
	scan    func(pgx.Rows) (Finding, error)
}

const ledgerSums = `WITH ledger AS (
	SELECT product_id, warehouse_id, SUM(quantity * direction) AS qty
	FROM stock_transactions WHERE warehouse_id IS NOT NULL
	GROUP BY product_id, warehouse_id
)`

func scanPairQuantities(rows pgx.Rows) (Finding, error) {
	var f Finding
	var warehouseID, stockQty, ledgerQty int64
	if err := rows.Scan(&f.ProductID, &warehouseID, &stockQty, &ledgerQty); err != nil {
		return Finding{}, err
	}
	diff := stockQty - ledgerQty
	f.WarehouseID, f.StockQuantity, f.LedgerQuantity, f.Difference = &warehouseID, &stockQty, &ledgerQty, &diff
	return f, nil
}

func scanDocument(rows pgx.Rows) (Finding, error) {
	var f Finding
	err := rows.Scan(&f.DocumentID, &f.ProductID)
	return f, err
}

var queries = map[Category]categoryQuery{
	QuantityMismatch: {
		sql: ledgerSums + `
SELECT s.product_id, s.warehouse_id, s.quantity, COALESCE(l.qty, 0)
FROM warehouse_stock s
LEFT JOIN ledger l ON l.product_id = s.product_id AND l.warehouse_id = s.warehouse_id
WHERE s.quantity <> COALESCE(l.qty, 0)`,
		orderBy: `product_id, warehouse_id`,
		scan:    scanPairQuantities,
	},
	NegativeQuantity: {
		sql:     `SELECT product_id, warehouse_id, quantity FROM warehouse_stock WHERE quantity < 0`,
		orderBy: `product_id, warehouse_id`,
		scan: func(rows pgx.Rows) (Finding, error) {
			var f Finding
			var warehouseID, qty int64
			if err := rows.Scan(&f.ProductID, &warehouseID, &qty); err != nil {
				return Finding{}, err
			}
			f.WarehouseID, f.StockQuantity = &warehouseID, &qty
			return f, nil
		},
	},
	DuplicateStockRow: {
		sql: `SELECT product_id, warehouse_id, COUNT(*)::int AS row_count FROM warehouse_stock
GROUP BY product_id, warehouse_id HAVING COUNT(*) > 1`,
		orderBy: `product_id, warehouse_id`,
		scan: func(rows pgx.Rows) (Finding, error) {
			var f Finding
			var warehouseID int64
			if err := rows.Scan(&f.ProductID, &warehouseID, &f.Rows); err != nil {
				return Finding{}, err
			}
			f.WarehouseID = &warehouseID
			return f, nil
		},
	},
	MissingStockRow: {
		sql: ledgerSums + `
SELECT l.product_id, l.warehouse_id, 0::bigint, l.qty FROM ledger l
WHERE NOT EXISTS (
	SELECT 1 FROM warehouse_stock s WHERE s.product_id = l.product_id AND s.warehouse_id = l.warehouse_id
)`,
		orderBy: `product_id, warehouse_id`,
		scan: func(rows pgx.Rows) (Finding, error) {
			f, err := scanPairQuantities(rows)
			f.StockQuantity, f.Difference = nil, nil
			return f, err
		},
	},
	UntrackedProduct: {
		sql: `SELECT p.id FROM products p
WHERE p.is_active AND NOT EXISTS (
	SELECT 1 FROM warehouse_stock s JOIN warehouses w ON w.id = s.warehouse_id
	WHERE s.product_id = p.id AND w.is_active
)`,
		orderBy: `id`,
		scan: func(rows pgx.Rows) (Finding, error) {
			var f Finding
			err := rows.Scan(&f.ProductID)
			return f, err
		},
	},
	SaleWithoutWarehouse: {
		sql:     `SELECT id, 0::bigint AS product_id FROM sales WHERE warehouse_id IS NULL`,
		orderBy: `id`,
		scan:    scanDocument,
	},
	CheckWithoutWarehouse: {
		sql:     `SELECT id, 0::bigint AS product_id FROM inventory_checks WHERE warehouse_id IS NULL`,
		orderBy: `id`,
		scan:    scanDocument,
	},
	TransactionWithoutWarehouse: {
		sql:     `SELECT id, product_id FROM stock_transactions WHERE warehouse_id IS NULL`,
		orderBy: `id`,
		scan:    scanDocument,
	},
}

// Scan counts and samples one category.
func (s *PGSource) Scan(ctx context.Context, category Category, limit int) (int, []Finding, error) {
	q, ok := queries[category]
	if !ok {
		return 0, nil, fmt.Errorf("unknown category %q", category)
	}
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM (`+q.sql+`) AS findings`).Scan(&count); err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT * FROM (`+q.sql+`) AS findings ORDER BY `+q.orderBy+` LIMIT $1`, limit)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	var out []Finding
	for rows.Next() {
		f, err := q.scan(rows)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, f)
	}
	return count, out, rows.Err()
}

var _ Source = (*PGSource)(nil)
