// Package catalog manages the menu: categories, their products and the
// optional price variants of each product.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultImageURL marks a product without an uploaded image.
const DefaultImageURL = "/images/icon.png"

// Category groups products on the menu.
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Order        int       `json:"order"`
	ProductCount int       `json:"productCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Product is a menu item. Price is zero when Variants are present.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	CategoryID   int64           `json:"categoryId"`
	CategoryName string          `json:"categoryName,omitempty"`
	Order        int             `json:"order"`
	ImageURL     string          `json:"imageUrl"`
	Variants     []Variant       `json:"variants"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// HasImage reports whether the product carries an uploaded image.
func (p Product) HasImage() bool {
	return p.ImageURL != "" && p.ImageURL != DefaultImageURL
}

// Variant is a named price alternative of a product, e.g. a size.
type Variant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

// VariantInput describes a variant to be written.
type VariantInput struct {
	Name  string          `json:"name" validate:"required,max=100"`
	Price decimal.Decimal `json:"price"`
}

// NewCategory holds the fields of a category insert.
type NewCategory struct {
	Name  string
	Order int
}

// NewProduct holds the fields of a product insert.
type NewProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	CategoryID  int64
	Order       int
	ImageURL    string
	Variants    []VariantInput
}

// ProductChanges lists the fields of a product update. Nil pointers leave the
// stored value untouched. When ReplaceVariants is set the product's variants
// are replaced by Variants (possibly empty).
type ProductChanges struct {
	Name            *string
	Description     *string
	Price           *decimal.Decimal
	CategoryID      *int64
	ImageURL        *string
	Order           *int
	Variants        []VariantInput
	ReplaceVariants bool
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID *int64
}

// Direction moves an entity one step among its siblings.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// MenuSection is one category of the public menu with its products.
type MenuSection struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Order    int       `json:"order"`
	Products []Product `json:"products"`
}
