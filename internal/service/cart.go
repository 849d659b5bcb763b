package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

// CartService manages Redis-backed carts.
type CartService struct {
	carts     repository.CartRepository
	products  repository.ProductRepository
	campaigns repository.CampaignRepository
	maxQty    int
	logger    *slog.Logger
	now       func() time.Time
}

// NewCartService creates a new cart service. maxQty caps the quantity of a
// single line.
func NewCartService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	campaigns repository.CampaignRepository,
	maxQty int,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		carts:     carts,
		products:  products,
		campaigns: campaigns,
		maxQty:    maxQty,
		logger:    logger,
		now:       utcNow,
	}
}

// CartItemInput is one product and quantity to put in the cart.
type CartItemInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// GetCart returns the priced cart of userID. A missing cart is empty.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.CartView, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// AddItem adds quantity units of a product, capping the line at the per-line
// maximum. The resulting quantity must be in stock.
func (s *CartService) AddItem(ctx context.Context, userID string, input *CartItemInput) (*domain.CartView, error) {
	if input.Quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}
	product, err := s.purchasable(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	qty := input.Quantity
	idx := cart.Find(input.ProductID)
	if idx >= 0 {
		qty += cart.Items[idx].Quantity
	}
	qty = min(qty, s.maxQty)
	if qty > product.Stock {
		return nil, insufficientStock(product)
	}

	now := s.now()
	if idx >= 0 {
		cart.Items[idx].Quantity = qty
	} else {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: product.ID, Quantity: qty, AddedAt: now})
	}
	if err := s.save(ctx, cart, now); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart item added",
		slog.String("user_id", userID),
		slog.String("product_id", product.ID),
		slog.Int("quantity", qty),
	)
	return s.view(ctx, cart)
}

// UpdateItem sets the quantity of a cart line. Zero removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.CartView, error) {
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := cart.Find(productID)
	if idx < 0 {
		return nil, apperrors.NotFound("cart item", productID)
	}

	if quantity == 0 {
		cart.Remove(productID)
	} else {
		product, err := s.purchasable(ctx, productID)
		if err != nil {
			return nil, err
		}
		quantity = min(quantity, s.maxQty)
		if quantity > product.Stock {
			return nil, insufficientStock(product)
		}
		cart.Items[idx].Quantity = quantity
	}

	if err := s.save(ctx, cart, s.now()); err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// RemoveItem drops a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.CartView, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.Find(productID) < 0 {
		return nil, apperrors.NotFound("cart item", productID)
	}
	cart.Remove(productID)
	if err := s.save(ctx, cart, s.now()); err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// ClearCart empties the cart of userID.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.carts.Delete(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// MergeCart folds a guest cart into the user's cart after login. Quantities
// of the same product are added, then capped by the per-line maximum and the
// available stock. Unknown, inactive and sold out products are skipped.
func (s *CartService) MergeCart(ctx context.Context, userID string, items []CartItemInput) (*domain.CartView, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return s.view(ctx, cart)
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products for merge: %w", err)
	}
	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	now := s.now()
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive || p.Stock <= 0 || it.Quantity <= 0 {
			continue
		}
		idx := cart.Find(it.ProductID)
		qty := it.Quantity
		if idx >= 0 {
			qty += cart.Items[idx].Quantity
		}
		qty = min(qty, s.maxQty, p.Stock)
		if idx >= 0 {
			cart.Items[idx].Quantity = qty
		} else {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: p.ID, Quantity: qty, AddedAt: now})
		}
	}

	if err := s.save(ctx, cart, now); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "guest cart merged",
		slog.String("user_id", userID),
		slog.Int("lines", len(cart.Items)),
	)
	return s.view(ctx, cart)
}

func (s *CartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart, now time.Time) error {
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *CartService) purchasable(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product for cart: %w", err)
	}
	if !product.IsActive {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s is not available", product.Name))
	}
	return product, nil
}

// view prices the cart. Lines whose product vanished, was deactivated or no
// longer has enough stock are returned unavailable and left out of totals.
func (s *CartService) view(ctx context.Context, cart *domain.Cart) (*domain.CartView, error) {
	v := &domain.CartView{Items: []domain.CartLine{}}
	if len(cart.Items) == 0 {
		return v, nil
	}

	ids := make([]string, 0, len(cart.Items))
	for _, it := range cart.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}
	now := s.now()
	running, err := s.campaigns.ListRunning(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	priceProducts(products, running, now)

	byID := make(map[string]*domain.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, it := range cart.Items {
		line := domain.CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
		if p, ok := byID[it.ProductID]; ok {
			line.Name = p.Name
			line.Slug = p.Slug
			line.Image = p.PrimaryImage()
			line.Price = p.EffectivePrice()
			line.Stock = p.Stock
			line.Available = p.IsActive && p.Stock >= it.Quantity
		}
		if line.Available {
			line.LineTotal = line.Price * int64(line.Quantity)
			v.Subtotal += line.LineTotal
			v.ItemCount += line.Quantity
		}
		v.Items = append(v.Items, line)
	}
	return v, nil
}

func insufficientStock(p *domain.Product) error {
	return apperrors.Conflict(fmt.Sprintf("only %d units of %s in stock", p.Stock, p.Name))
}
