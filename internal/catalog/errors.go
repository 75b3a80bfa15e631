package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks invalid input.
	ErrValidation = errors.New("catalog: validation failed")
	// ErrNotFound marks a missing category, product or variant.
	ErrNotFound = errors.New("catalog: not found")
	// ErrCategoryHasProducts blocks deleting a category that still owns products.
	ErrCategoryHasProducts = errors.New("catalog: category has products")
	// ErrStoreTx wraps a failed transactional write.
	ErrStoreTx = errors.New("catalog: store transaction failed")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// RowError explains why an import row was skipped. Row is the 1-based sheet
// row number (the header is row 1).
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}
