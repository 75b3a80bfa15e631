package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// digitFolder rewrites Persian and Arabic-Indic digits to ASCII.
var digitFolder = runes.Map(func(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r == '٫':
		return '.'
	}
	return r
})

var separatorStripper = strings.NewReplacer(",", "", "٬", "", "،", "")

// ParseNumber converts a spreadsheet or form value to a non-negative amount
// rounded to two decimal places. It never fails: empty, unparsable and negative input yields zero.
func ParseNumber(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return clampNonNegative(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero
		}
		return clampNonNegative(decimal.NewFromFloat(n))
	case float32:
		return ParseNumber(float64(n))
	case int:
		return clampNonNegative(decimal.NewFromInt(int64(n)))
	case int64:
		return clampNonNegative(decimal.NewFromInt(n))
	case int32:
		return clampNonNegative(decimal.NewFromInt(int64(n)))
	case string:
		return parseNumberString(n)
	default:
		return parseNumberString(fmt.Sprint(v))
	}
}

// NormalizeDigits folds non-ASCII digits to ASCII and strips thousands separators.
func NormalizeDigits(s string) string {
	folded, _, err := transform.String(digitFolder, s)
	if err != nil {
		folded = s
	}
	return strings.TrimSpace(separatorStripper.Replace(folded))
}

func parseNumberString(s string) decimal.Decimal {
	cleaned := NormalizeDigits(s)
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return clampNonNegative(d)
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return roundPrice(d)
}

// roundPrice matches the NUMERIC(14,2) price columns.
func roundPrice(d decimal.Decimal) decimal.Decimal {
	if d.Exponent() < -2 {
		return d.Round(2)
	}
	return d
}
