package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/shared"
	internalshared "github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	ListActive(ctx context.Context, category string) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, category, retail_price, wholesale_price, cost, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.RetailPrice, &p.WholesalePrice, &p.Cost, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Category != "" {
		args = append(args, filters.Category)
		where += ` AND category = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR sku ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDirection())
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *repository) ListActive(ctx context.Context, category string) ([]Product, error) {
	if category == "" {
		return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY id`)
	}
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active AND category=$1 ORDER BY id`, category)
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Product, error) {
	items, err := r.query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Product, len(items))
	for _, p := range items {
		out[p.ID] = p
	}
	return out, nil
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (Product, error) {
	created, err := scanProduct(r.db.QueryRow(ctx, `INSERT INTO products (sku, name, category, retail_price, wholesale_price, cost, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING `+productColumns,
		p.SKU, p.Name, p.Category, p.RetailPrice, p.WholesalePrice, p.Cost, p.IsActive))
	return created, mapWriteError(err)
}

func (r *repository) Update(ctx context.Context, p Product) (Product, error) {
	updated, err := scanProduct(r.db.QueryRow(ctx, `UPDATE products SET sku=$2, name=$3, category=$4, retail_price=$5, wholesale_price=$6, cost=$7, is_active=$8, updated_at=NOW()
WHERE id=$1 RETURNING `+productColumns,
		p.ID, p.SKU, p.Name, p.Category, p.RetailPrice, p.WholesalePrice, p.Cost, p.IsActive))
	return updated, mapWriteError(err)
}

func mapWriteError(err error) error {
	if internalshared.IsUniqueViolation(err) {
		return fmt.Errorf("product sku already exists: %w", shared.ErrDuplicate)
	}
	return err
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "sku":
		return "sku " + dir
	case "category":
		return "category " + dir + ", name"
	default:
		return "name " + dir
	}
}
