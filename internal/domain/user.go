package domain

import (
	"strings"
	"time"
)

// User roles.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// MinPasswordLength is enforced on register, reset and change.
const MinPasswordLength = 8

// IsValidRole checks whether role is a known role.
func IsValidRole(role string) bool {
	return role == RoleCustomer || role == RoleAdmin
}

// User is a storefront account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Addresses    []Address `json:"addresses"`
	Wishlist     []string  `json:"wishlist"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Address is a saved or order shipping address.
type Address struct {
	ID        string `json:"id,omitempty"`
	Label     string `json:"label,omitempty"`
	FullName  string `json:"full_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"required,in_phone"`
	Line1     string `json:"line1" validate:"required,max=200"`
	Line2     string `json:"line2,omitempty" validate:"max=200"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	Pincode   string `json:"pincode" validate:"required,pincode"`
	Country   string `json:"country,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// WithDefaults fills the country when omitted.
func (a Address) WithDefaults() Address {
	if a.Country == "" {
		a.Country = "India"
	}
	return a
}

// SetDefaultAddress marks id as the only default address.
func (u *User) SetDefaultAddress(id string) {
	for i := range u.Addresses {
		u.Addresses[i].IsDefault = u.Addresses[i].ID == id
	}
}

// AddressIndex returns the index of the address with id, or -1.
func (u *User) AddressIndex(id string) int {
	for i, a := range u.Addresses {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// InWishlist reports whether productID is wishlisted.
func (u *User) InWishlist(productID string) bool {
	for _, id := range u.Wishlist {
		if id == productID {
			return true
		}
	}
	return false
}

// UserFilter narrows the admin user list.
type UserFilter struct {
	Search string
	Role   string
}
