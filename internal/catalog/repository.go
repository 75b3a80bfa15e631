package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ff-menu/ff-menu/internal/platform/db"
)

// catalogLockKey serialises catalog write transactions so that max(order)+1
// allocations never collide.
const catalogLockKey int64 = 7_340_211

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL backed Store.
type Repository struct {
	reader
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{reader: reader{q: pool}, pool: pool}
}

// WithTx runs fn inside a read-committed transaction holding the catalog
// advisory lock.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, catalogLockKey); err != nil {
			return fmt.Errorf("lock catalog: %w", err)
		}
		return fn(ctx, &txRepo{reader: reader{q: tx}})
	})
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreTx, err)
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCategoryHasProducts) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ============================================================================
// READS
// ============================================================================

type reader struct {
	q querier
}

const categorySelect = `
SELECT c.id, c.name, c.sort_order, c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM products p WHERE p.category_id = c.id)
FROM categories c`

const productSelect = `
SELECT p.id, p.name, p.description, p.price::text, p.category_id, c.name,
       p.sort_order, p.image_url, p.created_at, p.updated_at
FROM products p
JOIN categories c ON c.id = p.category_id`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt, &c.UpdatedAt, &c.ProductCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.CategoryID, &p.CategoryName,
		&p.Order, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("product %d price: %w", p.ID, err)
	}
	return p, nil
}

func (r reader) GetCategory(ctx context.Context, id int64) (Category, error) {
	return scanCategory(r.q.QueryRow(ctx, categorySelect+` WHERE c.id = $1`, id))
}

func (r reader) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.q.Query(ctx, categorySelect+` ORDER BY c.sort_order, c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r reader) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, productSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return Product{}, err
	}
	products := []Product{p}
	if err := r.attachVariants(ctx, products); err != nil {
		return Product{}, err
	}
	return products[0], nil
}

func (r reader) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	query := productSelect
	args := []any{}
	if filter.CategoryID != nil {
		query += ` WHERE p.category_id = $1`
		args = append(args, *filter.CategoryID)
	}
	query += ` ORDER BY c.sort_order, c.id, p.sort_order, p.id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r reader) attachVariants(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(products))
	index := make(map[int64]int, len(products))
	for i := range products {
		products[i].Variants = []Variant{}
		ids = append(ids, products[i].ID)
		index[products[i].ID] = i
	}
	rows, err := r.q.Query(ctx, `
SELECT id, product_id, name, price::text
FROM product_variants
WHERE product_id = ANY($1)
ORDER BY product_id, position, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v     Variant
			price string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &price); err != nil {
			return err
		}
		if v.Price, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("variant %d price: %w", v.ID, err)
		}
		i := index[v.ProductID]
		products[i].Variants = append(products[i].Variants, v)
	}
	return rows.Err()
}

// ============================================================================
// TRANSACTIONAL WRITES
// ============================================================================

type txRepo struct {
	reader
}

func (t *txRepo) FindCategoryByName(ctx context.Context, name string) (Category, error) {
	return scanCategory(t.q.QueryRow(ctx, categorySelect+` WHERE c.name = $1 ORDER BY c.id LIMIT 1`, name))
}

func (t *txRepo) MaxCategoryOrder(ctx context.Context) (int, error) {
	var order int
	err := t.q.QueryRow(ctx, `SELECT COALESCE(MAX(sort_order), 0) FROM categories`).Scan(&order)
	return order, err
}

func (t *txRepo) CreateCategory(ctx context.Context, in NewCategory) (Category, error) {
	var c Category
	now := time.Now().UTC()
	err := t.q.QueryRow(ctx, `
INSERT INTO categories (name, sort_order, created_at, updated_at)
VALUES ($1, $2, $3, $3)
RETURNING id, name, sort_order, created_at, updated_at`, in.Name, in.Order, now).
		Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (t *txRepo) RenameCategory(ctx context.Context, id int64, name string) (Category, error) {
	tag, err := t.q.Exec(ctx, `UPDATE categories SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now().UTC(), id)
	if err != nil {
		return Category{}, err
	}
	if tag.RowsAffected() == 0 {
		return Category{}, ErrNotFound
	}
	return t.GetCategory(ctx, id)
}

func (t *txRepo) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrCategoryHasProducts
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) AdjacentCategory(ctx context.Context, order int, dir Direction) (Category, error) {
	cmp, sortDir, err := neighbourClause(dir)
	if err != nil {
		return Category{}, err
	}
	query := categorySelect + ` WHERE c.sort_order ` + cmp + ` $1 ORDER BY c.sort_order ` + sortDir + `, c.id LIMIT 1`
	return scanCategory(t.q.QueryRow(ctx, query, order))
}

func (t *txRepo) SetCategoryOrder(ctx context.Context, id int64, order int) error {
	tag, err := t.q.Exec(ctx, `UPDATE categories SET sort_order = $1, updated_at = $2 WHERE id = $3`, order, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) FindProductByNameInCategory(ctx context.Context, name string, categoryID int64) (Product, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, productSelect+` WHERE p.name = $1 AND p.category_id = $2 ORDER BY p.id LIMIT 1`, name, categoryID))
	if err != nil {
		return Product{}, err
	}
	products := []Product{p}
	if err := t.attachVariants(ctx, products); err != nil {
		return Product{}, err
	}
	return products[0], nil
}

func (t *txRepo) MaxProductOrder(ctx context.Context, categoryID int64) (int, error) {
	var order int
	err := t.q.QueryRow(ctx, `SELECT COALESCE(MAX(sort_order), 0) FROM products WHERE category_id = $1`, categoryID).Scan(&order)
	return order, err
}

func (t *txRepo) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	var id int64
	now := time.Now().UTC()
	err := t.q.QueryRow(ctx, `
INSERT INTO products (name, description, price, category_id, sort_order, image_url, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $7)
RETURNING id`, in.Name, in.Description, in.Price.String(), in.CategoryID, in.Order, in.ImageURL, now).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Product{}, fmt.Errorf("%w: category %d", ErrNotFound, in.CategoryID)
		}
		return Product{}, err
	}
	if err := t.insertVariants(ctx, id, in.Variants); err != nil {
		return Product{}, err
	}
	return t.GetProduct(ctx, id)
}

func (t *txRepo) UpdateProduct(ctx context.Context, id int64, ch ProductChanges) (Product, error) {
	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if ch.Name != nil {
		add("name", *ch.Name)
	}
	if ch.Description != nil {
		add("description", *ch.Description)
	}
	if ch.Price != nil {
		args = append(args, ch.Price.String())
		sets = append(sets, "price = $"+strconv.Itoa(len(args))+"::numeric")
	}
	if ch.CategoryID != nil {
		add("category_id", *ch.CategoryID)
	}
	if ch.ImageURL != nil {
		add("image_url", *ch.ImageURL)
	}
	if ch.Order != nil {
		add("sort_order", *ch.Order)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)
	query := `UPDATE products SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))

	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Product{}, fmt.Errorf("%w: category %d", ErrNotFound, *ch.CategoryID)
		}
		return Product{}, err
	}
	if tag.RowsAffected() == 0 {
		return Product{}, ErrNotFound
	}
	if ch.ReplaceVariants {
		if _, err := t.q.Exec(ctx, `DELETE FROM product_variants WHERE product_id = $1`, id); err != nil {
			return Product{}, err
		}
		if err := t.insertVariants(ctx, id, ch.Variants); err != nil {
			return Product{}, err
		}
	}
	return t.GetProduct(ctx, id)
}

func (t *txRepo) insertVariants(ctx context.Context, productID int64, variants []VariantInput) error {
	for i, v := range variants {
		_, err := t.q.Exec(ctx, `
INSERT INTO product_variants (product_id, name, price, position)
VALUES ($1, $2, $3::numeric, $4)`, productID, v.Name, v.Price.String(), i)
		if err != nil {
			return fmt.Errorf("insert variant %q: %w", v.Name, err)
		}
	}
	return nil
}

func (t *txRepo) DeleteProduct(ctx context.Context, id int64) (Product, error) {
	p, err := t.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (t *txRepo) AdjacentProduct(ctx context.Context, categoryID int64, order int, dir Direction) (Product, error) {
	cmp, sortDir, err := neighbourClause(dir)
	if err != nil {
		return Product{}, err
	}
	query := productSelect + ` WHERE p.category_id = $1 AND p.sort_order ` + cmp + ` $2 ORDER BY p.sort_order ` + sortDir + `, p.id LIMIT 1`
	return scanProduct(t.q.QueryRow(ctx, query, categoryID, order))
}

func (t *txRepo) SetProductOrder(ctx context.Context, id int64, order int) error {
	tag, err := t.q.Exec(ctx, `UPDATE products SET sort_order = $1, updated_at = $2 WHERE id = $3`, order, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func neighbourClause(dir Direction) (cmp, sortDir string, err error) {
	if !dir.Valid() {
		return "", "", validationError("unknown direction %q", dir)
	}
	if dir == DirectionUp {
		return "<", "DESC", nil
	}
	return ">", "ASC", nil
}

var (
	_ Store   = (*Repository)(nil)
	_ TxStore = (*txRepo)(nil)
)
