package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ImageCleaner removes uploaded product images. Implementations ignore the
// default image and empty URLs.
type ImageCleaner interface {
	RemoveImage(ctx context.Context, imageURL string) error
}

// CategoryRequest is the payload of category create and rename.
type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// ProductRequest is the payload of product create and update. Update is a
// full replace; an empty ImageURL keeps the current image.
type ProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  int64           `json:"categoryId" validate:"required,gt=0"`
	ImageURL    string          `json:"imageUrl" validate:"max=1024"`
	Variants    []VariantInput  `json:"variants" validate:"dive"`
}

// MoveRequest moves an entity one step.
type MoveRequest struct {
	Direction Direction `json:"direction" validate:"required,oneof=up down"`
}

// ReorderRequest rewrites sibling order to the position of each id.
type ReorderRequest struct {
	OrderedIDs []int64 `json:"orderedIds" validate:"required,min=1,unique,dive,gt=0"`
}

// Service implements catalog administration, the public menu and the
// spreadsheet import/export.
type Service struct {
	store    Store
	importer *Importer
	cache    *MenuCache
	images   ImageCleaner
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService wires a Service. cache and images may be nil.
func NewService(store Store, cache *MenuCache, images ImageCleaner, recorder ImportRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		importer: NewImporter(store, logger, recorder),
		cache:    cache,
		images:   images,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return validationError("%s", strings.Join(msgs, "; "))
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("menu cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) removeImage(ctx context.Context, p Product) {
	if s.images == nil || !p.HasImage() {
		return
	}
	if err := s.images.RemoveImage(ctx, p.ImageURL); err != nil {
		s.logger.Warn("image cleanup failed", slog.String("url", p.ImageURL), slog.Any("error", err))
	}
}

// ============================================================================
// CATEGORIES
// ============================================================================

// ListCategories returns categories by order with their product counts.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	return s.store.GetCategory(ctx, id)
}

// CreateCategory appends a category after the current last one.
func (s *Service) CreateCategory(ctx context.Context, req CategoryRequest) (Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return Category{}, err
	}
	var created Category
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		maxOrder, err := tx.MaxCategoryOrder(ctx)
		if err != nil {
			return err
		}
		created, err = tx.CreateCategory(ctx, NewCategory{Name: req.Name, Order: maxOrder + 1})
		return err
	})
	if err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	s.invalidate(ctx)
	return created, nil
}

// RenameCategory changes a category name.
func (s *Service) RenameCategory(ctx context.Context, id int64, req CategoryRequest) (Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return Category{}, err
	}
	var renamed Category
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		renamed, err = tx.RenameCategory(ctx, id, req.Name)
		return err
	})
	if err != nil {
		return Category{}, fmt.Errorf("rename category: %w", err)
	}
	s.invalidate(ctx)
	return renamed, nil
}

// DeleteCategory removes an empty category.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.DeleteCategory(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// ============================================================================
// PRODUCTS
// ============================================================================

func (s *Service) checkProduct(req *ProductRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	for i := range req.Variants {
		req.Variants[i].Name = strings.TrimSpace(req.Variants[i].Name)
	}
	if err := s.check(req); err != nil {
		return err
	}
	if req.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	req.Price = roundPrice(req.Price)
	for i, v := range req.Variants {
		if v.Price.IsNegative() {
			return validationError("variant %q price must not be negative", v.Name)
		}
		req.Variants[i].Price = roundPrice(v.Price)
	}
	if len(req.Variants) == 0 && !req.Price.IsPositive() {
		return validationError("a price or at least one variant is required")
	}
	return nil
}

// ListProducts returns products by category order then product order.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	return s.store.ListProducts(ctx, filter)
}

// GetProduct returns one product with its variants.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.store.GetProduct(ctx, id)
}

// CreateProduct appends a product to its category.
func (s *Service) CreateProduct(ctx context.Context, req ProductRequest) (Product, error) {
	if err := s.checkProduct(&req); err != nil {
		return Product{}, err
	}
	imageURL := req.ImageURL
	if imageURL == "" {
		imageURL = DefaultImageURL
	}
	var created Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		maxOrder, err := tx.MaxProductOrder(ctx, req.CategoryID)
		if err != nil {
			return err
		}
		created, err = tx.CreateProduct(ctx, NewProduct{
			Name:        req.Name,
			Description: req.Description,
			Price:       effectivePrice(req.Price, req.Variants),
			CategoryID:  req.CategoryID,
			Order:       maxOrder + 1,
			ImageURL:    imageURL,
			Variants:    req.Variants,
		})
		return err
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx)
	return created, nil
}

// UpdateProduct replaces a product's fields and variants. Moving a product to
// another category appends it there. A replaced uploaded image is removed.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req ProductRequest) (Product, error) {
	if err := s.checkProduct(&req); err != nil {
		return Product{}, err
	}
	var before, updated Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		before, err = tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		price := effectivePrice(req.Price, req.Variants)
		changes := ProductChanges{
			Name:            &req.Name,
			Description:     &req.Description,
			Price:           &price,
			CategoryID:      &req.CategoryID,
			Variants:        req.Variants,
			ReplaceVariants: true,
		}
		if req.ImageURL != "" {
			changes.ImageURL = &req.ImageURL
		}
		if req.CategoryID != before.CategoryID {
			maxOrder, err := tx.MaxProductOrder(ctx, req.CategoryID)
			if err != nil {
				return err
			}
			order := maxOrder + 1
			changes.Order = &order
		}
		updated, err = tx.UpdateProduct(ctx, id, changes)
		return err
	})
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if before.ImageURL != updated.ImageURL {
		s.removeImage(ctx, before)
	}
	s.invalidate(ctx)
	return updated, nil
}

// DeleteProduct removes a product, its variants and its uploaded image.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	var deleted Product
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		deleted, err = tx.DeleteProduct(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.removeImage(ctx, deleted)
	s.invalidate(ctx)
	return nil
}

// ============================================================================
// ORDERING
// ============================================================================

// MoveCategory swaps a category with its nearest neighbour in the given
// direction. Moving past either end is a no-op.
func (s *Service) MoveCategory(ctx context.Context, id int64, req MoveRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := tx.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		neighbour, err := tx.AdjacentCategory(ctx, current.Order, req.Direction)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.SetCategoryOrder(ctx, current.ID, neighbour.Order); err != nil {
			return err
		}
		return tx.SetCategoryOrder(ctx, neighbour.ID, current.Order)
	})
	if err != nil {
		return fmt.Errorf("move category: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// MoveProduct swaps a product with its nearest neighbour in the same
// category. Moving past either end is a no-op.
func (s *Service) MoveProduct(ctx context.Context, id int64, req MoveRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		neighbour, err := tx.AdjacentProduct(ctx, current.CategoryID, current.Order, req.Direction)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.SetProductOrder(ctx, current.ID, neighbour.Order); err != nil {
			return err
		}
		return tx.SetProductOrder(ctx, neighbour.ID, current.Order)
	})
	if err != nil {
		return fmt.Errorf("move product: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// ReorderCategories sets each listed category's order to its index.
func (s *Service) ReorderCategories(ctx context.Context, req ReorderRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for i, id := range req.OrderedIDs {
			if err := tx.SetCategoryOrder(ctx, id, i); err != nil {
				return fmt.Errorf("category %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reorder categories: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// ReorderProducts sets each listed product's order to its index.
func (s *Service) ReorderProducts(ctx context.Context, req ReorderRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for i, id := range req.OrderedIDs {
			if err := tx.SetProductOrder(ctx, id, i); err != nil {
				return fmt.Errorf("product %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reorder products: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// ============================================================================
// MENU, IMPORT, EXPORT
// ============================================================================

// Menu returns the public menu, served from cache when possible.
func (s *Service) Menu(ctx context.Context) ([]MenuSection, error) {
	menu, err := s.cache.Fetch(ctx, s.buildMenu)
	if errors.Is(err, ErrCacheUnavailable) {
		s.logger.Warn("menu cache unavailable", slog.Any("error", err))
		return s.buildMenu(ctx)
	}
	return menu, err
}

func (s *Service) buildMenu(ctx context.Context) ([]MenuSection, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	products, err := s.store.ListProducts(ctx, ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	byCategory := make(map[int64][]Product, len(categories))
	for _, p := range products {
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], p)
	}
	menu := make([]MenuSection, 0, len(categories))
	for _, c := range categories {
		items := byCategory[c.ID]
		if items == nil {
			items = []Product{}
		}
		menu = append(menu, MenuSection{ID: c.ID, Name: c.Name, Order: c.Order, Products: items})
	}
	return menu, nil
}

// Import reads an xlsx workbook and reconciles its rows with the catalog.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	rows, err := ReadSheet(r)
	if err != nil {
		return ImportResult{}, err
	}
	result, err := s.importer.ImportRows(ctx, rows)
	if result.CreatedCount+result.UpdatedCount > 0 {
		s.invalidate(ctx)
	}
	if err != nil {
		return result, fmt.Errorf("import: %w", err)
	}
	s.logger.Info("menu imported",
		slog.Int("created", result.CreatedCount),
		slog.Int("updated", result.UpdatedCount),
		slog.Int("skipped", len(result.Skipped)))
	return result, nil
}

// Export writes every product as an importable workbook.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	products, err := s.store.ListProducts(ctx, ProductFilter{})
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	return WriteSheet(w, products)
}
