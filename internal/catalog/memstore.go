package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySeed is the initial content of a MemoryStore. IDs are kept when set
// and assigned otherwise.
type MemorySeed struct {
	Categories []Category
	Products   []Product
}

// MemoryStore is an in-process Store. Transactions are serialised and work on
// a copy of the state that replaces the original only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewMemoryStore builds a MemoryStore holding seed.
func NewMemoryStore(seed MemorySeed) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	st := &memState{
		categories: make(map[int64]Category),
		products:   make(map[int64]Product),
		now:        s.now,
	}
	for _, c := range seed.Categories {
		if c.ID == 0 {
			st.nextCategoryID++
			c.ID = st.nextCategoryID
		} else if c.ID > st.nextCategoryID {
			st.nextCategoryID = c.ID
		}
		c.ProductCount = 0
		st.categories[c.ID] = c
	}
	for _, p := range seed.Products {
		if p.ID == 0 {
			st.nextProductID++
			p.ID = st.nextProductID
		} else if p.ID > st.nextProductID {
			st.nextProductID = p.ID
		}
		p.CategoryName = ""
		p.Variants = st.assignVariantIDs(p.ID, p.Variants)
		st.products[p.ID] = p
	}
	s.state = st
	return s
}

// WithTx implements Store.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.state = work
	return nil
}

// GetCategory implements Reader.
func (s *MemoryStore) GetCategory(ctx context.Context, id int64) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetCategory(ctx, id)
}

// ListCategories implements Reader.
func (s *MemoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListCategories(ctx)
}

// GetProduct implements Reader.
func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetProduct(ctx, id)
}

// ListProducts implements Reader.
func (s *MemoryStore) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListProducts(ctx, filter)
}

type memState struct {
	categories     map[int64]Category
	products       map[int64]Product
	nextCategoryID int64
	nextProductID  int64
	nextVariantID  int64
	now            func() time.Time
}

func (m *memState) clone() *memState {
	c := &memState{
		categories:     make(map[int64]Category, len(m.categories)),
		products:       make(map[int64]Product, len(m.products)),
		nextCategoryID: m.nextCategoryID,
		nextProductID:  m.nextProductID,
		nextVariantID:  m.nextVariantID,
		now:            m.now,
	}
	for id, cat := range m.categories {
		c.categories[id] = cat
	}
	for id, p := range m.products {
		p.Variants = append([]Variant(nil), p.Variants...)
		c.products[id] = p
	}
	return c
}

func (m *memState) assignVariantIDs(productID int64, variants []Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.ID == 0 {
			m.nextVariantID++
			v.ID = m.nextVariantID
		} else if v.ID > m.nextVariantID {
			m.nextVariantID = v.ID
		}
		v.ProductID = productID
		out = append(out, v)
	}
	return out
}

func (m *memState) buildVariants(productID int64, inputs []VariantInput) []Variant {
	out := make([]Variant, 0, len(inputs))
	for _, in := range inputs {
		m.nextVariantID++
		out = append(out, Variant{ID: m.nextVariantID, ProductID: productID, Name: in.Name, Price: in.Price})
	}
	return out
}

func (m *memState) withCount(c Category) Category {
	c.ProductCount = 0
	for _, p := range m.products {
		if p.CategoryID == c.ID {
			c.ProductCount++
		}
	}
	return c
}

func (m *memState) decorate(p Product) Product {
	if c, ok := m.categories[p.CategoryID]; ok {
		p.CategoryName = c.Name
	}
	p.Variants = append([]Variant{}, p.Variants...)
	return p
}

func (m *memState) GetCategory(_ context.Context, id int64) (Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	return m.withCount(c), nil
}

func (m *memState) ListCategories(_ context.Context) ([]Category, error) {
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, m.withCount(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memState) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return m.decorate(p), nil
}

func (m *memState) ListProducts(_ context.Context, filter ProductFilter) ([]Product, error) {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		if filter.CategoryID != nil && p.CategoryID != *filter.CategoryID {
			continue
		}
		out = append(out, m.decorate(p))
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := m.categories[out[i].CategoryID], m.categories[out[j].CategoryID]
		if ci.Order != cj.Order {
			return ci.Order < cj.Order
		}
		if ci.ID != cj.ID {
			return ci.ID < cj.ID
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memState) FindCategoryByName(_ context.Context, name string) (Category, error) {
	var found *Category
	for _, c := range m.categories {
		if c.Name != name {
			continue
		}
		if found == nil || c.ID < found.ID {
			found = &c
		}
	}
	if found == nil {
		return Category{}, ErrNotFound
	}
	return m.withCount(*found), nil
}

func (m *memState) MaxCategoryOrder(_ context.Context) (int, error) {
	maxOrder := 0
	for _, c := range m.categories {
		if c.Order > maxOrder {
			maxOrder = c.Order
		}
	}
	return maxOrder, nil
}

func (m *memState) CreateCategory(_ context.Context, in NewCategory) (Category, error) {
	m.nextCategoryID++
	now := m.now()
	c := Category{ID: m.nextCategoryID, Name: in.Name, Order: in.Order, CreatedAt: now, UpdatedAt: now}
	m.categories[c.ID] = c
	return c, nil
}

func (m *memState) RenameCategory(ctx context.Context, id int64, name string) (Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	c.Name = name
	c.UpdatedAt = m.now()
	m.categories[id] = c
	return m.GetCategory(ctx, id)
}

func (m *memState) DeleteCategory(_ context.Context, id int64) error {
	if _, ok := m.categories[id]; !ok {
		return ErrNotFound
	}
	for _, p := range m.products {
		if p.CategoryID == id {
			return ErrCategoryHasProducts
		}
	}
	delete(m.categories, id)
	return nil
}

func (m *memState) AdjacentCategory(_ context.Context, order int, dir Direction) (Category, error) {
	if !dir.Valid() {
		return Category{}, validationError("unknown direction %q", dir)
	}
	var best *Category
	for _, c := range m.categories {
		bestOrder, bestID := 0, int64(0)
		if best != nil {
			bestOrder, bestID = best.Order, best.ID
		}
		if !closer(dir, order, c.Order, c.ID, bestOrder, bestID) {
			continue
		}
		best = &c
	}
	if best == nil {
		return Category{}, ErrNotFound
	}
	return *best, nil
}

func (m *memState) SetCategoryOrder(_ context.Context, id int64, order int) error {
	c, ok := m.categories[id]
	if !ok {
		return ErrNotFound
	}
	c.Order = order
	c.UpdatedAt = m.now()
	m.categories[id] = c
	return nil
}

func (m *memState) FindProductByNameInCategory(_ context.Context, name string, categoryID int64) (Product, error) {
	var found *Product
	for _, p := range m.products {
		if p.CategoryID != categoryID || p.Name != name {
			continue
		}
		if found == nil || p.ID < found.ID {
			found = &p
		}
	}
	if found == nil {
		return Product{}, ErrNotFound
	}
	return m.decorate(*found), nil
}

func (m *memState) MaxProductOrder(_ context.Context, categoryID int64) (int, error) {
	maxOrder := 0
	for _, p := range m.products {
		if p.CategoryID == categoryID && p.Order > maxOrder {
			maxOrder = p.Order
		}
	}
	return maxOrder, nil
}

func (m *memState) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	if _, ok := m.categories[in.CategoryID]; !ok {
		return Product{}, ErrNotFound
	}
	m.nextProductID++
	now := m.now()
	p := Product{
		ID:          m.nextProductID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		Order:       in.Order,
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Variants = m.buildVariants(p.ID, in.Variants)
	m.products[p.ID] = p
	return m.GetProduct(ctx, p.ID)
}

func (m *memState) UpdateProduct(ctx context.Context, id int64, ch ProductChanges) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	if ch.Name != nil {
		p.Name = *ch.Name
	}
	if ch.Description != nil {
		p.Description = *ch.Description
	}
	if ch.Price != nil {
		p.Price = *ch.Price
	}
	if ch.CategoryID != nil {
		if _, ok := m.categories[*ch.CategoryID]; !ok {
			return Product{}, ErrNotFound
		}
		p.CategoryID = *ch.CategoryID
	}
	if ch.ImageURL != nil {
		p.ImageURL = *ch.ImageURL
	}
	if ch.Order != nil {
		p.Order = *ch.Order
	}
	if ch.ReplaceVariants {
		p.Variants = m.buildVariants(p.ID, ch.Variants)
	}
	p.UpdatedAt = m.now()
	m.products[id] = p
	return m.GetProduct(ctx, id)
}

func (m *memState) DeleteProduct(ctx context.Context, id int64) (Product, error) {
	p, err := m.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	delete(m.products, id)
	return p, nil
}

func (m *memState) AdjacentProduct(_ context.Context, categoryID int64, order int, dir Direction) (Product, error) {
	if !dir.Valid() {
		return Product{}, validationError("unknown direction %q", dir)
	}
	var best *Product
	for _, p := range m.products {
		if p.CategoryID != categoryID {
			continue
		}
		bestOrder, bestID := 0, int64(0)
		if best != nil {
			bestOrder, bestID = best.Order, best.ID
		}
		if !closer(dir, order, p.Order, p.ID, bestOrder, bestID) {
			continue
		}
		best = &p
	}
	if best == nil {
		return Product{}, ErrNotFound
	}
	return *best, nil
}

func (m *memState) SetProductOrder(_ context.Context, id int64, order int) error {
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Order = order
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

// closer reports whether a sibling at candidate order is a better neighbour
// of pivot in direction dir than the current best. A zero bestID means there
// is no best yet. Equal orders favour the lower id, matching the postgres
// ORDER BY.
func closer(dir Direction, pivot, candidate int, candidateID int64, bestOrder int, bestID int64) bool {
	switch dir {
	case DirectionUp:
		if candidate >= pivot {
			return false
		}
		return bestID == 0 || candidate > bestOrder || (candidate == bestOrder && candidateID < bestID)
	case DirectionDown:
		if candidate <= pivot {
			return false
		}
		return bestID == 0 || candidate < bestOrder || (candidate == bestOrder && candidateID < bestID)
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
var _ TxStore = (*memState)(nil)
