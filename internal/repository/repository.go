// Package repository declares the persistence ports used by the services.
package repository

import (
	"context"
	"time"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// Store groups the repositories that share one connection. InTx hands fn a
// Store whose repositories all run inside a single transaction.
type Store interface {
	Users() UserRepository
	Products() ProductRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	Campaigns() CampaignRepository
	Reviews() ReviewRepository

	// InTx runs fn in a ReadCommitted transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user. A duplicate email returns AlreadyExists.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update persists profile, addresses, wishlist, role and active flag.
	Update(ctx context.Context, user *domain.User) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, hash string) error

	// List returns users matching the filter along with the total count.
	List(ctx context.Context, filter domain.UserFilter, page pagination.Params) ([]domain.User, int, error)
}

// ProductRepository defines the interface for catalogue persistence.
type ProductRepository interface {
	// Create inserts a new product. A duplicate slug returns AlreadyExists.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetBySlug retrieves a product by its slug.
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)

	// GetByIDs returns the products with the given ids in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)

	// SlugExists reports whether a product already uses slug.
	SlugExists(ctx context.Context, slug string) (bool, error)

	// List returns products matching the filter along with the total count.
	List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) ([]domain.Product, int, error)

	// Featured returns up to limit active featured products.
	Featured(ctx context.Context, limit int) ([]domain.Product, error)

	// Categories returns the active categories with their product counts.
	Categories(ctx context.Context) ([]domain.CategoryCount, error)

	// Update modifies an existing product.
	Update(ctx context.Context, product *domain.Product) error

	// Deactivate soft deletes a product.
	Deactivate(ctx context.Context, id string) error

	// SetStock overwrites the stock level.
	SetStock(ctx context.Context, id string, stock int) error

	// LockForUpdate loads and row-locks the given products. Must run in a transaction.
	LockForUpdate(ctx context.Context, ids []string) ([]domain.Product, error)

	// DecrementStock removes qty units, failing with Conflict when stock is short.
	DecrementStock(ctx context.Context, id string, qty int) error

	// RestoreStock puts qty units back after a cancellation.
	RestoreStock(ctx context.Context, id string, qty int) error

	// RecomputeRating refreshes rating and review_count from the reviews table.
	RecomputeRating(ctx context.Context, productID string) error
}

// OrderRepository defines the interface for order persistence.
type OrderRepository interface {
	// Create inserts a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByNumber retrieves an order by its human readable number.
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)

	// GetByGatewayOrderID retrieves an order by the payment gateway order id.
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)

	// GetByAWB retrieves an order by its courier tracking number.
	GetByAWB(ctx context.Context, awb string) (*domain.Order, error)

	// LockByID loads and row-locks an order. Must run in a transaction.
	LockByID(ctx context.Context, id string) (*domain.Order, error)

	// Update persists status, payment, history, shipment and notes.
	Update(ctx context.Context, order *domain.Order) error

	// List returns orders matching the filter along with the total count.
	List(ctx context.Context, filter domain.OrderFilter, page pagination.Params) ([]domain.Order, int, error)

	// HasDeliveredItem reports whether the user has a delivered order containing productID.
	HasDeliveredItem(ctx context.Context, userID, productID string) (bool, error)
}

// CouponRepository defines the interface for coupon persistence.
type CouponRepository interface {
	// Create inserts a new coupon. A duplicate code returns AlreadyExists.
	Create(ctx context.Context, coupon *domain.Coupon) error

	// GetByID retrieves a coupon by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Coupon, error)

	// GetByCode retrieves a coupon by its normalized code.
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// LockByCode loads and row-locks a coupon. Must run in a transaction.
	LockByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// List returns coupons along with the total count.
	List(ctx context.Context, page pagination.Params) ([]domain.Coupon, int, error)

	// Update modifies an existing coupon.
	Update(ctx context.Context, coupon *domain.Coupon) error

	// Delete removes a coupon.
	Delete(ctx context.Context, id string) error

	// IncrementUsage increments used_count by one.
	IncrementUsage(ctx context.Context, id string) error

	// RecordUsage records one redemption.
	RecordUsage(ctx context.Context, usage *domain.CouponUsage) error

	// UserUsageCount counts prior redemptions of the coupon by the account
	// or the customer email.
	UserUsageCount(ctx context.Context, couponID, userID, email string) (int, error)

	// ReleaseUsage undoes the redemption made by orderID.
	ReleaseUsage(ctx context.Context, couponID, orderID string) error
}

// CampaignRepository defines the interface for campaign persistence.
type CampaignRepository interface {
	// Create inserts a new campaign. A duplicate slug returns AlreadyExists.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// GetByID retrieves a campaign by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns along with the total count.
	List(ctx context.Context, page pagination.Params) ([]domain.Campaign, int, error)

	// ListRunning returns active campaigns whose window contains now, by priority.
	ListRunning(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// Update modifies an existing campaign.
	Update(ctx context.Context, campaign *domain.Campaign) error

	// Delete removes a campaign.
	Delete(ctx context.Context, id string) error
}

// ReviewRepository defines the interface for review persistence.
type ReviewRepository interface {
	// Create inserts a review. A second review by the same user returns AlreadyExists.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID retrieves a review by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// Delete removes a review.
	Delete(ctx context.Context, id string) error

	// ListByProduct returns a product's reviews, newest first.
	ListByProduct(ctx context.Context, productID string, page pagination.Params) ([]domain.Review, int, error)

	// List returns all reviews, newest first.
	List(ctx context.Context, page pagination.Params) ([]domain.Review, int, error)

	// Summary aggregates the ratings of a product.
	Summary(ctx context.Context, productID string) (domain.ReviewSummary, error)
}

// NotificationRepository defines the interface for the notification log.
type NotificationRepository interface {
	// Create inserts a pending notification.
	Create(ctx context.Context, n *domain.Notification) error

	// Update persists delivery status, attempts and error.
	Update(ctx context.Context, n *domain.Notification) error

	// ListByOrder returns the notifications sent for an order.
	ListByOrder(ctx context.Context, orderID string) ([]domain.Notification, error)
}

// AnalyticsRepository defines the read-only admin reporting queries.
type AnalyticsRepository interface {
	// Revenue returns revenue and order count of revenue-bearing orders since t.
	Revenue(ctx context.Context, since time.Time) (revenue int64, orders int, err error)

	// OrdersByStatus counts orders placed since t per status.
	OrdersByStatus(ctx context.Context, since time.Time) (map[string]int, error)

	// RevenueByDay returns the daily revenue series since t.
	RevenueByDay(ctx context.Context, since time.Time) ([]domain.DailyRevenue, error)

	// TopProducts returns the best sellers by units since t.
	TopProducts(ctx context.Context, since time.Time, limit int) ([]domain.TopProduct, error)

	// LowStock returns active products with stock at or below threshold.
	LowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error)

	// Customers returns the total customer count and those created since t.
	Customers(ctx context.Context, since time.Time) (total, recent int, err error)
}

// CartRepository stores carts in Redis.
type CartRepository interface {
	// Get retrieves the cart of userID. A missing cart returns NotFound.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save persists the cart and refreshes its expiry.
	Save(ctx context.Context, cart *domain.Cart) error

	// Delete removes the cart of userID.
	Delete(ctx context.Context, userID string) error
}

// DedupeStore remembers processed webhook deliveries.
type DedupeStore interface {
	// Claim marks key as seen for ttl. It returns false when key was already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key so a failed delivery can be processed again.
	Release(ctx context.Context, key string) error
}

// ResetTokenStore keeps hashed password reset tokens.
type ResetTokenStore interface {
	// Save stores tokenHash for userID with the given lifetime.
	Save(ctx context.Context, tokenHash, userID string, ttl time.Duration) error

	// Consume returns the owner of tokenHash and deletes it. Unknown or
	// expired tokens return InvalidInput.
	Consume(ctx context.Context, tokenHash string) (string, error)
}

// TokenCache caches provider access tokens.
type TokenCache interface {
	// Get returns the cached token or "" when absent.
	Get(ctx context.Context, name string) (string, error)

	// Set caches token for ttl.
	Set(ctx context.Context, name, token string, ttl time.Duration) error

	// Delete drops the cached token.
	Delete(ctx context.Context, name string) error
}

// OrderKeyStore maps Idempotency-Key headers to created orders.
type OrderKeyStore interface {
	// Reserve claims key for a new checkout. When key is already taken it
	// returns the order id stored for it, or "" while that checkout is in flight.
	Reserve(ctx context.Context, key string, ttl time.Duration) (orderID string, reserved bool, err error)

	// Complete records the order created for a reserved key.
	Complete(ctx context.Context, key, orderID string, ttl time.Duration) error

	// Release frees a reserved key after a failed checkout.
	Release(ctx context.Context, key string) error
}
