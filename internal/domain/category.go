package domain

import "strings"

// Category is one of the three fixed style buckets a training image is
// classified into by the vision evaluator.
type Category string

const (
	CategoryPhotorealistic Category = "photorealistic"
	CategoryMonochrome     Category = "monochrome-stylized"
	CategoryColor          Category = "color-stylized"
)

// Categories returns the fixed category set in its canonical order. The order
// is load-bearing: plan computation and prompt selection iterate it so results
// stay deterministic.
func Categories() []Category {
	return []Category{CategoryPhotorealistic, CategoryMonochrome, CategoryColor}
}

// ParseCategory normalizes free-form model output into a known category.
func ParseCategory(raw string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryPhotorealistic:
		return CategoryPhotorealistic, true
	case CategoryMonochrome:
		return CategoryMonochrome, true
	case CategoryColor:
		return CategoryColor, true
	default:
		return "", false
	}
}
