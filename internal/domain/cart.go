package domain

import "time"

// CartItem is one stored cart line.
type CartItem struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// Cart is a user's cart as stored in Redis.
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Find returns the index of productID in the cart, or -1.
func (c *Cart) Find(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Remove drops productID from the cart.
func (c *Cart) Remove(productID string) {
	if i := c.Find(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// CartLine is a priced cart line returned to clients.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	LineTotal int64  `json:"line_total"`
	Available bool   `json:"available"`
}

// CartView is the cart with totals computed on read.
type CartView struct {
	Items     []CartLine `json:"items"`
	ItemCount int        `json:"item_count"`
	Subtotal  int64      `json:"subtotal"`
}
