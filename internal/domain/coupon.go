package domain

import (
	"strings"
	"time"
)

// Coupon types.
const (
	CouponPercentage   = "percentage"
	CouponFixed        = "fixed"
	CouponFreeShipping = "freeShipping"
)

// IsValidCouponType checks whether t is a coupon type.
func IsValidCouponType(t string) bool {
	switch t {
	case CouponPercentage, CouponFixed, CouponFreeShipping:
		return true
	}
	return false
}

// NormalizeCouponCode upper-cases and trims a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Coupon is a promotional code. Value is a percent for percentage coupons and
// paise for fixed ones.
type Coupon struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Description    string     `json:"description,omitempty"`
	Type           string     `json:"type"`
	Value          int64      `json:"value"`
	MinOrderAmount int64      `json:"min_order_amount"`
	MaxDiscount    int64      `json:"max_discount"`
	UsageLimit     int        `json:"usage_limit"`
	UsedCount      int        `json:"used_count"`
	PerUserLimit   int        `json:"per_user_limit"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CouponUsage records one redemption.
type CouponUsage struct {
	ID        string    `json:"id"`
	CouponID  string    `json:"coupon_id"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	OrderID   string    `json:"order_id"`
	Discount  int64     `json:"discount"`
	CreatedAt time.Time `json:"created_at"`
}

// CouponRejection explains why a coupon cannot be applied.
type CouponRejection string

const (
	CouponInactive     CouponRejection = "coupon is not active"
	CouponNotStarted   CouponRejection = "coupon is not valid yet"
	CouponExpired      CouponRejection = "coupon has expired"
	CouponExhausted    CouponRejection = "coupon usage limit reached"
	CouponUserLimit    CouponRejection = "you have already used this coupon"
	CouponBelowMinimum CouponRejection = "order does not meet the minimum amount for this coupon"
)

// Check applies the validation rules in order and returns the first
// rejection, or "" when the coupon can be applied. userUses is the number of
// prior redemptions by the current user.
func (c *Coupon) Check(subtotal int64, userUses int, now time.Time) CouponRejection {
	switch {
	case !c.IsActive:
		return CouponInactive
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		return CouponNotStarted
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		return CouponExpired
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return CouponExhausted
	case c.PerUserLimit > 0 && userUses >= c.PerUserLimit:
		return CouponUserLimit
	case subtotal < c.MinOrderAmount:
		return CouponBelowMinimum
	}
	return ""
}

// DiscountFor computes the discount on subtotal. Free-shipping coupons give
// no item discount.
func (c *Coupon) DiscountFor(subtotal int64) int64 {
	var d int64
	switch c.Type {
	case CouponPercentage:
		d = subtotal * c.Value / 100
		if c.MaxDiscount > 0 && d > c.MaxDiscount {
			d = c.MaxDiscount
		}
	case CouponFixed:
		d = c.Value
	}
	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d
}

// FreeShipping reports whether the coupon waives the shipping fee.
func (c *Coupon) FreeShipping() bool { return c.Type == CouponFreeShipping }

// CouponQuote is the outcome of validating a coupon against a cart.
type CouponQuote struct {
	Valid        bool    `json:"valid"`
	Discount     int64   `json:"discount"`
	FreeShipping bool    `json:"free_shipping"`
	Coupon       *Coupon `json:"coupon,omitempty"`
}
