package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// maxAddresses bounds the saved addresses per account.
const maxAddresses = 10

// UserService manages profiles, addresses, wishlists and admin user
// moderation.
type UserService struct {
	users    repository.UserRepository
	products repository.ProductRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(users repository.UserRepository, products repository.ProductRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, products: products, logger: logger, now: utcNow}
}

// UpdateProfileInput holds the editable profile fields. Nil fields are left
// unchanged.
type UpdateProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone *string `json:"phone" validate:"omitempty,in_phone"`
}

// GetProfile returns the account of userID.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return user, nil
}

// UpdateProfile changes the name and phone of an account.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input *UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for profile update: %w", err)
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("name must not be empty")
		}
		user.Name = name
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "profile updated", slog.String("user_id", userID))
	return user, nil
}

// ListAddresses returns the saved addresses of userID.
func (s *UserService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user addresses: %w", err)
	}
	return user.Addresses, nil
}

// AddAddress saves a new address. The first address, or one flagged
// is_default, becomes the only default.
func (s *UserService) AddAddress(ctx context.Context, userID string, addr domain.Address) ([]domain.Address, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for address: %w", err)
	}
	if len(user.Addresses) >= maxAddresses {
		return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d addresses can be saved", maxAddresses))
	}

	addr = addr.WithDefaults()
	addr.ID = uuid.New().String()
	user.Addresses = append(user.Addresses, addr)
	if addr.IsDefault || len(user.Addresses) == 1 {
		user.SetDefaultAddress(addr.ID)
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user.Addresses, nil
}

// UpdateAddress replaces a saved address.
func (s *UserService) UpdateAddress(ctx context.Context, userID, addressID string, addr domain.Address) ([]domain.Address, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for address: %w", err)
	}
	idx := user.AddressIndex(addressID)
	if idx < 0 {
		return nil, apperrors.NotFound("address", addressID)
	}

	addr = addr.WithDefaults()
	addr.ID = addressID
	user.Addresses[idx] = addr
	if addr.IsDefault {
		user.SetDefaultAddress(addressID)
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user.Addresses, nil
}

// DeleteAddress removes a saved address. When the default is removed the
// first remaining address becomes the default.
func (s *UserService) DeleteAddress(ctx context.Context, userID, addressID string) ([]domain.Address, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for address: %w", err)
	}
	idx := user.AddressIndex(addressID)
	if idx < 0 {
		return nil, apperrors.NotFound("address", addressID)
	}

	wasDefault := user.Addresses[idx].IsDefault
	user.Addresses = append(user.Addresses[:idx], user.Addresses[idx+1:]...)
	if wasDefault && len(user.Addresses) > 0 {
		user.SetDefaultAddress(user.Addresses[0].ID)
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user.Addresses, nil
}

// Wishlist returns the active wishlisted products in the order they were
// added.
func (s *UserService) Wishlist(ctx context.Context, userID string) ([]domain.Product, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user wishlist: %w", err)
	}
	out := []domain.Product{}
	if len(user.Wishlist) == 0 {
		return out, nil
	}

	products, err := s.products.GetByIDs(ctx, user.Wishlist)
	if err != nil {
		return nil, fmt.Errorf("load wishlist products: %w", err)
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range user.Wishlist {
		if p, ok := byID[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddToWishlist wishlists an active product. Adding twice is a no-op.
func (s *UserService) AddToWishlist(ctx context.Context, userID, productID string) ([]string, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product for wishlist: %w", err)
	}
	if !product.IsActive {
		return nil, apperrors.NotFound("product", productID)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for wishlist: %w", err)
	}
	if user.InWishlist(productID) {
		return user.Wishlist, nil
	}
	user.Wishlist = append(user.Wishlist, productID)
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user.Wishlist, nil
}

// RemoveFromWishlist drops a product from the wishlist.
func (s *UserService) RemoveFromWishlist(ctx context.Context, userID, productID string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for wishlist: %w", err)
	}
	if !user.InWishlist(productID) {
		return nil, apperrors.NotFound("wishlist item", productID)
	}
	kept := make([]string, 0, len(user.Wishlist)-1)
	for _, id := range user.Wishlist {
		if id != productID {
			kept = append(kept, id)
		}
	}
	user.Wishlist = kept
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user.Wishlist, nil
}

// ListUsers returns a page of accounts for the admin.
func (s *UserService) ListUsers(ctx context.Context, filter domain.UserFilter, page pagination.Params) ([]domain.User, int, error) {
	if filter.Role != "" && !domain.IsValidRole(filter.Role) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", filter.Role))
	}
	users, total, err := s.users.List(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// SetRole changes the role of an account. Admins cannot change their own role.
func (s *UserService) SetRole(ctx context.Context, actorID, userID, role string) (*domain.User, error) {
	if !domain.IsValidRole(role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid role %q", role))
	}
	if actorID == userID {
		return nil, apperrors.InvalidInput("you cannot change your own role")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for role change: %w", err)
	}
	user.Role = role
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user role changed",
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.String("actor_id", actorID),
	)
	return user, nil
}

// SetActive enables or disables an account. Admins cannot disable themselves.
func (s *UserService) SetActive(ctx context.Context, actorID, userID string, active bool) (*domain.User, error) {
	if actorID == userID && !active {
		return nil, apperrors.InvalidInput("you cannot deactivate your own account")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for status change: %w", err)
	}
	user.IsActive = active
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user status changed",
		slog.String("user_id", userID),
		slog.Bool("is_active", active),
		slog.String("actor_id", actorID),
	)
	return user, nil
}

func (s *UserService) save(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
