package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// Import row outcomes reported to an ImportRecorder.
const (
	RowCreated = "created"
	RowUpdated = "updated"
	RowSkipped = "skipped"
)

// ImportRecorder observes the outcome of every imported row.
type ImportRecorder interface {
	ObserveImportRow(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveImportRow(string) {}

type importField int

const (
	fieldName importField = iota
	fieldCategory
	fieldPrice
	fieldDescription
)

// extractionRule maps a field to the sheet headers that may carry it, in
// priority order. Headers are compared after NormalizeHeader.
type extractionRule struct {
	field   importField
	headers []string
}

var extractionRules = []extractionRule{
	{field: fieldName, headers: []string{"name", "نام"}},
	{field: fieldCategory, headers: []string{"category", "دسته‌بندی", "دسته بندی", "دسته"}},
	{field: fieldPrice, headers: []string{"price", "قیمت"}},
	{field: fieldDescription, headers: []string{"description", "توضیحات"}},
}

// NormalizeHeader canonicalises a sheet header: trimmed, lowercased and
// without the trailing "*" used to mark required columns.
func NormalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimSpace(strings.TrimSuffix(h, "*"))
	return strings.ToLower(h)
}

// RawRow is one data row of an import sheet. Cells are keyed by normalised
// header; Line is the 1-based sheet row.
type RawRow struct {
	Line  int
	Cells map[string]string
}

// NewRawRow builds a RawRow, normalising the header keys.
func NewRawRow(line int, cells map[string]string) RawRow {
	normalized := make(map[string]string, len(cells))
	for k, v := range cells {
		normalized[NormalizeHeader(k)] = v
	}
	return RawRow{Line: line, Cells: normalized}
}

func (r RawRow) value(f importField) string {
	for _, rule := range extractionRules {
		if rule.field != f {
			continue
		}
		for _, h := range rule.headers {
			if v := strings.TrimSpace(r.Cells[h]); v != "" {
				return v
			}
		}
	}
	return ""
}

func (r RawRow) blank() bool {
	for _, v := range r.Cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ImportResult summarises an import.
type ImportResult struct {
	CreatedCount int        `json:"createdCount"`
	UpdatedCount int        `json:"updatedCount"`
	Skipped      []RowError `json:"skipped"`
	// Warnings lists applied rows whose cells were partly ignored.
	Warnings []RowError `json:"warnings"`
}

type importRecord struct {
	name        string
	category    string
	description string
	price       decimal.Decimal
	variants    []VariantInput
}

func isPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "-"
}

func extractRecord(row RawRow) (importRecord, error) {
	rec := importRecord{
		name:        row.value(fieldName),
		category:    row.value(fieldCategory),
		description: row.value(fieldDescription),
	}
	if rec.name == "" {
		return rec, validationError("product name is required")
	}
	if rec.category == "" {
		return rec, validationError("category is required")
	}
	rawPrice := row.value(fieldPrice)
	if variants := ParseVariants(rawPrice); variants != nil {
		rec.variants = variants
		rec.price = decimal.Zero
	} else {
		rec.price = ParseNumber(rawPrice)
	}
	return rec, nil
}

// Importer reconciles spreadsheet rows against a Store. Categories and
// products are matched by exact name, products within their category.
type Importer struct {
	store    Store
	logger   *slog.Logger
	recorder ImportRecorder
}

// NewImporter constructs an Importer. recorder may be nil.
func NewImporter(store Store, logger *slog.Logger, recorder ImportRecorder) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Importer{store: store, logger: logger, recorder: recorder}
}

// ImportRows applies rows in order, each in its own transaction. A row that
// fails validation or storage is skipped and reported; only cancellation of
// ctx aborts the batch.
func (im *Importer) ImportRows(ctx context.Context, rows []RawRow) (ImportResult, error) {
	result := ImportResult{Skipped: []RowError{}, Warnings: []RowError{}}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if row.blank() {
			continue
		}
		rec, err := extractRecord(row)
		if err != nil {
			im.skip(&result, row, err)
			continue
		}
		created, warning, err := im.applyRecord(ctx, rec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			im.logger.Warn("import row failed", slog.Int("row", row.Line), slog.String("product", rec.name), slog.Any("error", err))
			im.skip(&result, row, err)
			continue
		}
		if warning != "" {
			im.logger.Warn("import row partly applied", slog.Int("row", row.Line), slog.String("product", rec.name), slog.String("reason", warning))
			result.Warnings = append(result.Warnings, RowError{Row: row.Line, Reason: warning})
		}
		if created {
			result.CreatedCount++
			im.recorder.ObserveImportRow(RowCreated)
		} else {
			result.UpdatedCount++
			im.recorder.ObserveImportRow(RowUpdated)
		}
	}
	return result, nil
}

func (im *Importer) skip(result *ImportResult, row RawRow, err error) {
	reason := err.Error()
	if errors.Is(err, ErrValidation) {
		reason = strings.TrimPrefix(reason, ErrValidation.Error()+": ")
	}
	result.Skipped = append(result.Skipped, RowError{Row: row.Line, Reason: reason})
	im.recorder.ObserveImportRow(RowSkipped)
}

// applyRecord upserts one row. warning is set when part of the row was not
// applied.
func (im *Importer) applyRecord(ctx context.Context, rec importRecord) (created bool, warning string, err error) {
	err = im.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		warning = ""
		category, err := findOrCreateCategory(ctx, tx, rec.category)
		if err != nil {
			return err
		}

		existing, err := tx.FindProductByNameInCategory(ctx, rec.name, category.ID)
		switch {
		case err == nil:
			// Without variant data the stored variants stay, and so does the
			// zero base price that goes with them.
			price := effectivePrice(rec.price, variantInputs(existing.Variants))
			changes := ProductChanges{Price: &price}
			if !isPlaceholder(rec.description) {
				changes.Description = &rec.description
			}
			if rec.variants != nil {
				changes.Price = &rec.price
				changes.Variants = rec.variants
				changes.ReplaceVariants = true
			} else if len(existing.Variants) > 0 && rec.price.IsPositive() {
				warning = fmt.Sprintf("price %s ignored: product has %d variants", rec.price, len(existing.Variants))
			}
			if _, err := tx.UpdateProduct(ctx, existing.ID, changes); err != nil {
				return fmt.Errorf("update product %q: %w", rec.name, err)
			}
			created = false
			return nil
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("find product %q: %w", rec.name, err)
		}

		maxOrder, err := tx.MaxProductOrder(ctx, category.ID)
		if err != nil {
			return fmt.Errorf("max product order: %w", err)
		}
		description := rec.description
		if isPlaceholder(description) {
			description = ""
		}
		_, err = tx.CreateProduct(ctx, NewProduct{
			Name:        rec.name,
			Description: description,
			Price:       rec.price,
			CategoryID:  category.ID,
			Order:       maxOrder + 1,
			ImageURL:    DefaultImageURL,
			Variants:    rec.variants,
		})
		if err != nil {
			return fmt.Errorf("create product %q: %w", rec.name, err)
		}
		created = true
		return nil
	})
	return created, warning, err
}

func findOrCreateCategory(ctx context.Context, tx TxStore, name string) (Category, error) {
	category, err := tx.FindCategoryByName(ctx, name)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Category{}, fmt.Errorf("find category %q: %w", name, err)
	}
	maxOrder, err := tx.MaxCategoryOrder(ctx)
	if err != nil {
		return Category{}, fmt.Errorf("max category order: %w", err)
	}
	category, err = tx.CreateCategory(ctx, NewCategory{Name: name, Order: maxOrder + 1})
	if err != nil {
		return Category{}, fmt.Errorf("create category %q: %w", name, err)
	}
	return category, nil
}
