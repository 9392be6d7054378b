package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ProductCodePattern format of printed product codes, e.g. SKA-RNG-123456-a1b2c3.
var ProductCodePattern = regexp.MustCompile(`^SKA-[A-Z]{3}-\d{6}-[a-z0-9]{6}$`)

// ValidateCatalogItem checks a product before it reaches the store.
// All violations are reported together.
func ValidateCatalogItem(item CatalogItem) error {
	fields := map[string]string{}
	if strings.TrimSpace(item.Name) == "" {
		fields["name"] = "product name is required"
	}
	if item.Price <= 0 {
		fields["price"] = "must be greater than zero"
	}
	if item.Quantity < 0 {
		fields["quantity"] = "must be non-negative"
	}
	if item.Code != "" && !ProductCodePattern.MatchString(item.Code) {
		fields["code"] = "invalid product code format"
	}
	for i, v := range item.Variants {
		key := fmt.Sprintf("variants[%d]", i)
		switch {
		case strings.TrimSpace(v.Name) == "":
			fields[key] = "variant name is required"
		case v.Price < 0:
			fields[key] = "variant price must be non-negative"
		case v.Quantity < 0:
			fields[key] = "variant quantity must be non-negative"
		}
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}
