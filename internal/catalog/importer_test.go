package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(line int, cells map[string]string) RawRow {
	return NewRawRow(line, cells)
}

type countingRecorder struct {
	results map[string]int
}

func (c *countingRecorder) ObserveImportRow(result string) {
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[result]++
}

// failingStore fails CreateProduct for one product name.
type failingStore struct {
	*MemoryStore
	failOn string
}

func (f *failingStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return f.MemoryStore.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return fn(ctx, &failingTx{TxStore: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	TxStore
	failOn string
}

func (f *failingTx) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	if in.Name == f.failOn {
		return Product{}, errors.New("disk on fire")
	}
	return f.TxStore.CreateProduct(ctx, in)
}

func TestImportMargheritaCreatedThenUpdated(t *testing.T) {
	store := NewMemoryStore(MemorySeed{})
	im := NewImporter(store, nil, nil)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Margherita", "category": "Pizzas", "price": "120000"}),
		row(3, map[string]string{"name": "Margherita", "category": "Pizzas", "price": "130000"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Empty(t, result.Skipped)

	products, err := store.ListProducts(context.Background(), ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Margherita", products[0].Name)
	assert.Equal(t, "Pizzas", products[0].CategoryName)
	assert.True(t, decimal.NewFromInt(130000).Equal(products[0].Price))
	assert.Equal(t, DefaultImageURL, products[0].ImageURL)
	assert.Equal(t, 1, products[0].Order)
}

func TestImportIsIdempotent(t *testing.T) {
	store := NewMemoryStore(MemorySeed{})
	im := NewImporter(store, nil, nil)
	r := row(2, map[string]string{"name": "Latte", "category": "Coffee", "price": "90,000", "description": "milk"})

	result, err := im.ImportRows(context.Background(), []RawRow{r, r})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	assert.Equal(t, 1, result.UpdatedCount)

	products, err := store.ListProducts(context.Background(), ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestImportCreatesCategoryOnce(t *testing.T) {
	store := NewMemoryStore(MemorySeed{Categories: []Category{
		{ID: 1, Name: "Pizzas", Order: 1},
		{ID: 2, Name: "Salads", Order: 5},
	}})
	im := NewImporter(store, nil, nil)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Cola", "category": "Drinks", "price": "30000"}),
		row(3, map[string]string{"name": "Water", "category": "Drinks", "price": "10000"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)

	categories, err := store.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 3)
	drinks := categories[2]
	assert.Equal(t, "Drinks", drinks.Name)
	assert.Equal(t, 6, drinks.Order)
	assert.Equal(t, 2, drinks.ProductCount)

	products, err := store.ListProducts(context.Background(), ProductFilter{CategoryID: &drinks.ID})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, []int{1, 2}, []int{products[0].Order, products[1].Order})
}

func TestImportMatchesProductWithinCategory(t *testing.T) {
	store := NewMemoryStore(MemorySeed{})
	im := NewImporter(store, nil, nil)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Special", "category": "Pizzas", "price": "1"}),
		row(3, map[string]string{"name": "Special", "category": "Salads", "price": "2"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)
	assert.Equal(t, 0, result.UpdatedCount)
}

func TestImportReplacesVariants(t *testing.T) {
	store := NewMemoryStore(MemorySeed{
		Categories: []Category{{ID: 1, Name: "Pizzas", Order: 1}},
		Products: []Product{{
			ID: 1, Name: "Pepperoni", CategoryID: 1, Order: 1, ImageURL: DefaultImageURL,
			Variants: []Variant{
				{Name: "A", Price: decimal.NewFromInt(100)},
				{Name: "B", Price: decimal.NewFromInt(200)},
			},
		}},
	})
	im := NewImporter(store, nil, nil)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Pepperoni", "category": "Pizzas", "price": "C: 5000"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)

	p, err := store.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "C", p.Variants[0].Name)
	assert.True(t, decimal.NewFromInt(5000).Equal(p.Variants[0].Price))
	assert.True(t, p.Price.IsZero())
}

func TestImportPlainPriceKeepsVariants(t *testing.T) {
	store := NewMemoryStore(MemorySeed{
		Categories: []Category{{ID: 1, Name: "Pizzas", Order: 1}},
		Products: []Product{{
			ID: 1, Name: "Pepperoni", CategoryID: 1, Order: 1,
			Variants: []Variant{{Name: "A", Price: decimal.NewFromInt(100)}},
		}},
	})
	im := NewImporter(store, nil, nil)

	res, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Pepperoni", "category": "Pizzas", "price": "900"}),
		row(3, map[string]string{"name": "Pepperoni", "category": "Pizzas", "description": "spicy"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.UpdatedCount)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 2, res.Warnings[0].Row)
	assert.Equal(t, "price 900 ignored: product has 1 variants", res.Warnings[0].Reason)

	p, err := store.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, p.Variants, 1)
	assert.True(t, p.Price.IsZero())
}

func TestImportDescriptionPlaceholderKeepsExisting(t *testing.T) {
	store := NewMemoryStore(MemorySeed{
		Categories: []Category{{ID: 1, Name: "Pizzas", Order: 1}},
		Products:   []Product{{ID: 1, Name: "Diavola", Description: "spicy", CategoryID: 1, Order: 1}},
	})
	im := NewImporter(store, nil, nil)

	_, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Diavola", "category": "Pizzas", "price": "10", "description": "-"}),
		row(3, map[string]string{"name": "Funghi", "category": "Pizzas", "price": "10", "description": "-"}),
	})
	require.NoError(t, err)

	products, err := store.ListProducts(context.Background(), ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "spicy", products[0].Description)
	assert.Equal(t, "", products[1].Description)
}

func TestImportAlternateHeaders(t *testing.T) {
	store := NewMemoryStore(MemorySeed{})
	im := NewImporter(store, nil, nil)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"نام": "چای", "دسته‌بندی": "نوشیدنی", "قیمت": "۲۵,۰۰۰", "توضیحات": "دمنوش"}),
		row(3, map[string]string{"Name *": "Espresso", "CATEGORY": "نوشیدنی", "Price": "40000"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)

	products, err := store.ListProducts(context.Background(), ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "چای", products[0].Name)
	assert.Equal(t, "دمنوش", products[0].Description)
	assert.True(t, decimal.NewFromInt(25000).Equal(products[0].Price))
	assert.Equal(t, products[0].CategoryID, products[1].CategoryID)
}

func TestImportSkipsInvalidRows(t *testing.T) {
	store := NewMemoryStore(MemorySeed{})
	rec := &countingRecorder{}
	im := NewImporter(store, nil, rec)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Orphan", "price": "10"}),
		row(3, map[string]string{"name": "  ", "category": "Pizzas"}),
		row(4, map[string]string{"name": "", "category": "", "price": ""}),
		row(5, map[string]string{"name": "Ok", "category": "Pizzas"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, RowError{Row: 2, Reason: "category is required"}, result.Skipped[0])
	assert.Equal(t, RowError{Row: 3, Reason: "product name is required"}, result.Skipped[1])
	assert.Equal(t, map[string]int{RowCreated: 1, RowSkipped: 2}, rec.results)

	categories, err := store.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestImportStoreFailureRollsBackRow(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(MemorySeed{}), failOn: "Broken"}
	im := NewImporter(store, nil, nil)

	result, err := im.ImportRows(context.Background(), []RawRow{
		row(2, map[string]string{"name": "Broken", "category": "Ghosts", "price": "1"}),
		row(3, map[string]string{"name": "Fine", "category": "Pizzas", "price": "1"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 2, result.Skipped[0].Row)
	assert.Contains(t, result.Skipped[0].Reason, "disk on fire")

	categories, err := store.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Pizzas", categories[0].Name)
	assert.Equal(t, 1, categories[0].Order)
}

func TestImportStopsOnCancellation(t *testing.T) {
	store := NewMemoryStore(MemorySeed{})
	im := NewImporter(store, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := im.ImportRows(ctx, []RawRow{
		row(2, map[string]string{"name": "Late", "category": "Pizzas", "price": "1"}),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.CreatedCount)
}
