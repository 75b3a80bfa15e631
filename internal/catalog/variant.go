package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseVariants decodes a compound price cell such as
// "small: 100000 | large: 150000". Only strings containing a colon are
// candidates; anything else is a single price and yields nil.
//
// Segments are separated by '|' or newlines and split on their first colon,
// so a variant name cannot itself contain a colon. Segments without a name or
// a price are dropped.
func ParseVariants(v any) []VariantInput {
	s, ok := v.(string)
	if !ok || !strings.Contains(s, ":") {
		return nil
	}
	segments := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == '\n' || r == '\r'
	})
	var variants []VariantInput
	for _, segment := range segments {
		name, price, found := strings.Cut(segment, ":")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		price = strings.TrimSpace(price)
		if name == "" || price == "" {
			continue
		}
		variants = append(variants, VariantInput{Name: name, Price: ParseNumber(price)})
	}
	if len(variants) == 0 {
		return nil
	}
	return variants
}

// FormatPrice renders a product price the way the import expects it back:
// a plain number, or "name: price | name: price" for variant products.
func FormatPrice(p Product) string {
	if len(p.Variants) == 0 {
		return p.Price.String()
	}
	parts := make([]string, 0, len(p.Variants))
	for _, v := range p.Variants {
		parts = append(parts, v.Name+": "+v.Price.String())
	}
	return strings.Join(parts, " | ")
}

func variantInputs(variants []Variant) []VariantInput {
	if len(variants) == 0 {
		return nil
	}
	out := make([]VariantInput, 0, len(variants))
	for _, v := range variants {
		out = append(out, VariantInput{Name: v.Name, Price: v.Price})
	}
	return out
}

func effectivePrice(price decimal.Decimal, variants []VariantInput) decimal.Decimal {
	if len(variants) > 0 {
		return decimal.Zero
	}
	return price
}
