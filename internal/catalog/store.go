package catalog

import "context"

// Reader exposes catalog queries. Lists are sorted by order, then id.
type Reader interface {
	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
}

// TxStore is the transactional view of the catalog. Lookups return
// ErrNotFound when nothing matches.
type TxStore interface {
	Reader

	FindCategoryByName(ctx context.Context, name string) (Category, error)
	MaxCategoryOrder(ctx context.Context) (int, error)
	CreateCategory(ctx context.Context, c NewCategory) (Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (Category, error)
	// DeleteCategory fails with ErrCategoryHasProducts while products remain.
	DeleteCategory(ctx context.Context, id int64) error
	// AdjacentCategory returns the nearest category with a strictly smaller
	// (up) or strictly larger (down) order.
	AdjacentCategory(ctx context.Context, order int, dir Direction) (Category, error)
	SetCategoryOrder(ctx context.Context, id int64, order int) error

	FindProductByNameInCategory(ctx context.Context, name string, categoryID int64) (Product, error)
	MaxProductOrder(ctx context.Context, categoryID int64) (int, error)
	CreateProduct(ctx context.Context, p NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, id int64, changes ProductChanges) (Product, error)
	// DeleteProduct removes the product with its variants and returns it.
	DeleteProduct(ctx context.Context, id int64) (Product, error)
	AdjacentProduct(ctx context.Context, categoryID int64, order int, dir Direction) (Product, error)
	SetProductOrder(ctx context.Context, id int64, order int) error
}

// Store is the catalog persistence. WithTx runs fn atomically: either every
// write fn made is visible afterwards or none is.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}
