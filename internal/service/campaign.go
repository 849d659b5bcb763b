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
	"github.com/utafrali/glowskin/pkg/slug"
)

// CampaignService manages time-boxed sales.
type CampaignService struct {
	repo   repository.CampaignRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewCampaignService creates a new campaign service.
func NewCampaignService(repo repository.CampaignRepository, logger *slog.Logger) *CampaignService {
	return &CampaignService{repo: repo, logger: logger, now: utcNow}
}

// CampaignInput holds the fields of a campaign create or replace.
type CampaignInput struct {
	Name          string    `json:"name" validate:"required,max=150"`
	Description   string    `json:"description"`
	BannerImage   string    `json:"banner_image" validate:"omitempty,url"`
	DiscountType  string    `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue int64     `json:"discount_value" validate:"gt=0"`
	Categories    []string  `json:"categories"`
	ProductIDs    []string  `json:"product_ids" validate:"dive,uuid"`
	StartsAt      time.Time `json:"starts_at" validate:"required"`
	EndsAt        time.Time `json:"ends_at" validate:"required"`
	IsActive      *bool     `json:"is_active"`
	Priority      int       `json:"priority"`
}

func (in *CampaignInput) check() error {
	if !domain.IsValidCampaignDiscount(in.DiscountType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid discount_type %q", in.DiscountType))
	}
	if in.DiscountValue <= 0 {
		return apperrors.InvalidInput("discount_value must be greater than 0")
	}
	if in.DiscountType == domain.DiscountPercentage && in.DiscountValue > 100 {
		return apperrors.InvalidInput("percentage discount must not exceed 100")
	}
	if !in.EndsAt.After(in.StartsAt) {
		return apperrors.InvalidInput("ends_at must be after starts_at")
	}
	return nil
}

// ActiveCampaigns returns the running campaigns by priority.
func (s *CampaignService) ActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	campaigns, err := s.repo.ListRunning(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return campaigns, nil
}

// ListCampaigns returns a page of all campaigns.
func (s *CampaignService) ListCampaigns(ctx context.Context, page pagination.Params) ([]domain.Campaign, int, error) {
	campaigns, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return campaigns, total, nil
}

// GetCampaign retrieves a campaign by id.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// CreateCampaign creates a campaign, suffixing the slug on collisions.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CampaignInput) (*domain.Campaign, error) {
	if err := input.check(); err != nil {
		return nil, err
	}
	base := slug.Generate(input.Name)
	if base == "" {
		return nil, apperrors.InvalidInput("campaign name must contain letters or digits")
	}

	now := s.now()
	c := &domain.Campaign{
		ID:        uuid.New().String(),
		CreatedAt: now,
	}
	applyCampaignInput(c, input, now)

	for n := 1; ; n++ {
		c.Slug = slug.WithSuffix(base, n)
		err := s.repo.Create(ctx, c)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) || n >= maxSlugAttempts {
			return nil, fmt.Errorf("create campaign: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", c.ID),
		slog.String("slug", c.Slug),
	)
	return c, nil
}

// UpdateCampaign replaces the editable fields of a campaign.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, input *CampaignInput) (*domain.Campaign, error) {
	if err := input.check(); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for update: %w", err)
	}

	applyCampaignInput(c, input, s.now())
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	s.logger.InfoContext(ctx, "campaign updated", slog.String("campaign_id", c.ID))
	return c, nil
}

// DeleteCampaign removes a campaign.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	s.logger.InfoContext(ctx, "campaign deleted", slog.String("campaign_id", id))
	return nil
}

func applyCampaignInput(c *domain.Campaign, in *CampaignInput, now time.Time) {
	c.Name = in.Name
	c.Description = in.Description
	c.BannerImage = in.BannerImage
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.Categories = orEmptyStrings(in.Categories)
	c.ProductIDs = orEmptyStrings(in.ProductIDs)
	c.StartsAt = in.StartsAt.UTC()
	c.EndsAt = in.EndsAt.UTC()
	c.IsActive = in.IsActive == nil || *in.IsActive
	c.Priority = in.Priority
	c.UpdatedAt = now
}
