package domain

import "time"

// Campaign discount types.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// IsValidCampaignDiscount checks whether t is a campaign discount type.
func IsValidCampaignDiscount(t string) bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Campaign is a time-boxed automatic sale.
type Campaign struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description,omitempty"`
	BannerImage   string    `json:"banner_image,omitempty"`
	DiscountType  string    `json:"discount_type"`
	DiscountValue int64     `json:"discount_value"`
	Categories    []string  `json:"categories"`
	ProductIDs    []string  `json:"product_ids"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	IsActive      bool      `json:"is_active"`
	Priority      int       `json:"priority"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsRunning reports whether the campaign is active at now.
func (c *Campaign) IsRunning(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartsAt) && now.Before(c.EndsAt)
}

// AppliesTo reports whether the campaign covers p. A campaign with neither
// products nor categories covers the whole catalogue.
func (c *Campaign) AppliesTo(p *Product) bool {
	if len(c.ProductIDs) == 0 && len(c.Categories) == 0 {
		return true
	}
	for _, id := range c.ProductIDs {
		if id == p.ID {
			return true
		}
	}
	for _, cat := range c.Categories {
		if cat == p.Category {
			return true
		}
	}
	return false
}

// Discount is the per-unit discount on price, never more than price.
func (c *Campaign) Discount(price int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountPercentage:
		d = price * c.DiscountValue / 100
	case DiscountFixed:
		d = c.DiscountValue
	}
	if d > price {
		d = price
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ApplyBestCampaign sets p.SalePrice and p.Campaign from the applicable
// running campaign with the largest discount. Ties go to higher priority.
func ApplyBestCampaign(p *Product, campaigns []Campaign, now time.Time) {
	p.SalePrice = 0
	p.Campaign = nil

	var best *Campaign
	var bestDiscount int64
	for i := range campaigns {
		c := &campaigns[i]
		if !c.IsRunning(now) || !c.AppliesTo(p) {
			continue
		}
		d := c.Discount(p.Price)
		if d == 0 {
			continue
		}
		if best == nil || d > bestDiscount || (d == bestDiscount && c.Priority > best.Priority) {
			best, bestDiscount = c, d
		}
	}
	if best != nil {
		p.SalePrice = p.Price - bestDiscount
		cp := *best
		p.Campaign = &cp
	}
}
