package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// CouponService validates and manages coupons.
type CouponService struct {
	repo   repository.CouponRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewCouponService creates a new coupon service.
func NewCouponService(repo repository.CouponRepository, logger *slog.Logger) *CouponService {
	return &CouponService{repo: repo, logger: logger, now: utcNow}
}

// CouponInput holds the fields of a coupon create or replace.
type CouponInput struct {
	Code           string     `json:"code" validate:"required,max=40"`
	Description    string     `json:"description" validate:"max=255"`
	Type           string     `json:"type" validate:"required,oneof=percentage fixed freeShipping"`
	Value          int64      `json:"value" validate:"gte=0"`
	MinOrderAmount int64      `json:"min_order_amount" validate:"gte=0"`
	MaxDiscount    int64      `json:"max_discount" validate:"gte=0"`
	UsageLimit     int        `json:"usage_limit" validate:"gte=0"`
	PerUserLimit   int        `json:"per_user_limit" validate:"gte=0"`
	ValidFrom      *time.Time `json:"valid_from"`
	ValidUntil     *time.Time `json:"valid_until"`
	IsActive       *bool      `json:"is_active"`
}

func (in *CouponInput) check() error {
	if domain.NormalizeCouponCode(in.Code) == "" {
		return apperrors.InvalidInput("coupon code is required")
	}
	switch in.Type {
	case domain.CouponPercentage:
		if in.Value <= 0 || in.Value > 100 {
			return apperrors.InvalidInput("percentage value must be between 1 and 100")
		}
	case domain.CouponFixed:
		if in.Value <= 0 {
			return apperrors.InvalidInput("fixed value must be greater than 0")
		}
	case domain.CouponFreeShipping:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("invalid coupon type %q", in.Type))
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidUntil.After(*in.ValidFrom) {
		return apperrors.InvalidInput("valid_until must be after valid_from")
	}
	return nil
}

// ValidateCoupon checks code against a cart subtotal for userID, which may
// be empty for guests. Any rejection is an InvalidInput error carrying the
// reason.
func (s *CouponService) ValidateCoupon(ctx context.Context, userID, code string, subtotal int64) (*domain.CouponQuote, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}
	if subtotal < 0 {
		return nil, apperrors.InvalidInput("subtotal must not be negative")
	}

	coupon, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.InvalidInput("invalid coupon code")
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	uses, err := userCouponUses(ctx, s.repo, coupon, userID, "")
	if err != nil {
		return nil, err
	}
	return quoteCoupon(coupon, subtotal, uses, s.now())
}

// ListCoupons returns a page of coupons.
func (s *CouponService) ListCoupons(ctx context.Context, page pagination.Params) ([]domain.Coupon, int, error) {
	coupons, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, total, nil
}

// CreateCoupon creates a coupon with an upper-cased code.
func (s *CouponService) CreateCoupon(ctx context.Context, input *CouponInput) (*domain.Coupon, error) {
	if err := input.check(); err != nil {
		return nil, err
	}
	now := s.now()
	c := &domain.Coupon{ID: uuid.New().String(), CreatedAt: now}
	applyCouponInput(c, input, now)

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	s.logger.InfoContext(ctx, "coupon created",
		slog.String("coupon_id", c.ID),
		slog.String("code", c.Code),
	)
	return c, nil
}

// UpdateCoupon replaces the editable fields of a coupon. used_count is kept.
func (s *CouponService) UpdateCoupon(ctx context.Context, id string, input *CouponInput) (*domain.Coupon, error) {
	if err := input.check(); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coupon for update: %w", err)
	}
	applyCouponInput(c, input, s.now())
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update coupon: %w", err)
	}

	s.logger.InfoContext(ctx, "coupon updated", slog.String("coupon_id", c.ID))
	return c, nil
}

// DeleteCoupon removes a coupon.
func (s *CouponService) DeleteCoupon(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	s.logger.InfoContext(ctx, "coupon deleted", slog.String("coupon_id", id))
	return nil
}

func applyCouponInput(c *domain.Coupon, in *CouponInput, now time.Time) {
	c.Code = domain.NormalizeCouponCode(in.Code)
	c.Description = in.Description
	c.Type = in.Type
	c.Value = in.Value
	if in.Type == domain.CouponFreeShipping {
		c.Value = 0
	}
	c.MinOrderAmount = in.MinOrderAmount
	c.MaxDiscount = in.MaxDiscount
	c.UsageLimit = in.UsageLimit
	c.PerUserLimit = in.PerUserLimit
	c.ValidFrom = utcPtr(in.ValidFrom)
	c.ValidUntil = utcPtr(in.ValidUntil)
	c.IsActive = in.IsActive == nil || *in.IsActive
	c.UpdatedAt = now
}

// userCouponUses counts prior redemptions when a per-user limit applies.
// Guests are counted by their normalized email.
func userCouponUses(ctx context.Context, repo repository.CouponRepository, c *domain.Coupon, userID, email string) (int, error) {
	if c.PerUserLimit == 0 || (userID == "" && email == "") {
		return 0, nil
	}
	uses, err := repo.UserUsageCount(ctx, c.ID, userID, email)
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return uses, nil
}

// quoteCoupon applies the validation rules and computes the discount.
func quoteCoupon(c *domain.Coupon, subtotal int64, uses int, now time.Time) (*domain.CouponQuote, error) {
	if reason := c.Check(subtotal, uses, now); reason != "" {
		return nil, apperrors.InvalidInput(string(reason))
	}
	return &domain.CouponQuote{
		Valid:        true,
		Discount:     c.DiscountFor(subtotal),
		FreeShipping: c.FreeShipping(),
		Coupon:       c,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
