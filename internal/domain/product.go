package domain

import "time"

// Product sort orders.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortPopular   = "popular"
)

// IsValidSort checks whether s is a known product sort.
func IsValidSort(s string) bool {
	switch s {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortRating, SortPopular:
		return true
	}
	return false
}

// Product is a catalogue item. Prices are in paise.
type Product struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Slug             string         `json:"slug"`
	Description      string         `json:"description"`
	ShortDescription string         `json:"short_description,omitempty"`
	Category         string         `json:"category"`
	Brand            string         `json:"brand,omitempty"`
	Price            int64          `json:"price"`
	CompareAtPrice   int64          `json:"compare_at_price,omitempty"`
	SKU              string         `json:"sku,omitempty"`
	Stock            int            `json:"stock"`
	Images           []ProductImage `json:"images"`
	Variants         []Variant      `json:"variants"`
	SkinTypes        []string       `json:"skin_types"`
	Ingredients      string         `json:"ingredients,omitempty"`
	Tags             []string       `json:"tags"`
	WeightGrams      int            `json:"weight_grams"`
	IsActive         bool           `json:"is_active"`
	IsFeatured       bool           `json:"is_featured"`
	Rating           float64        `json:"rating"`
	ReviewCount      int            `json:"review_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// SalePrice is the best running campaign price, set with Campaign.
	SalePrice int64     `json:"sale_price,omitempty"`
	Campaign  *Campaign `json:"campaign,omitempty"`
}

// ProductImage is one gallery image.
type ProductImage struct {
	URL string `json:"url" validate:"required,url"`
	Alt string `json:"alt,omitempty"`
}

// Variant is a size or shade of a product.
type Variant struct {
	Name  string `json:"name" validate:"required"`
	SKU   string `json:"sku,omitempty"`
	Price int64  `json:"price" validate:"gte=0"`
	Stock int    `json:"stock" validate:"gte=0"`
}

// EffectivePrice is the price a customer pays per unit.
func (p *Product) EffectivePrice() int64 {
	if p.Campaign != nil {
		return p.SalePrice
	}
	return p.Price
}

// PrimaryImage returns the first image URL or "".
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// ProductFilter narrows catalogue listings.
type ProductFilter struct {
	Category        string
	Brand           string
	SkinType        string
	MinPrice        *int64
	MaxPrice        *int64
	Featured        *bool
	Search          string
	Sort            string
	IncludeInactive bool
}

// CategoryCount is one entry of the category facet.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}
