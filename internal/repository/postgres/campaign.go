package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/database"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

const campaignColumns = `id, name, slug, description, banner_image, discount_type,
	discount_value, categories, product_ids, starts_at, ends_at, is_active, priority,
	created_at, updated_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db database.DBTX
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign repository.
func NewCampaignRepository(db database.DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign into the database.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	categoriesJSON, err := marshalJSON("categories", c.Categories)
	if err != nil {
		return err
	}
	productsJSON, err := marshalJSON("product_ids", c.ProductIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Slug,
		c.Description,
		c.BannerImage,
		c.DiscountType,
		c.DiscountValue,
		categoriesJSON,
		productsJSON,
		c.StartsAt,
		c.EndsAt,
		c.IsActive,
		c.Priority,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "slug", c.Slug)
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by its ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("campaign", id)
	}
	return c, err
}

// List returns campaigns with the total count, newest first.
func (r *CampaignRepository) List(ctx context.Context, page pagination.Params) ([]domain.Campaign, int, error) {
	limit, offset := limitOffset(page)
	rows, err := r.db.Query(ctx, `
		SELECT `+campaignColumns+`, count(*) OVER() AS total_count
		FROM campaigns
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.Campaign
		totalCount int
	)
	for rows.Next() {
		c, err := scanCampaign(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	return campaigns, totalCount, nil
}

// ListRunning returns active campaigns running at now, highest priority first.
func (r *CampaignRepository) ListRunning(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE is_active = TRUE AND starts_at <= $1 AND ends_at > $1
		ORDER BY priority DESC, starts_at DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign rows: %w", err)
	}
	return campaigns, nil
}

// Update modifies an existing campaign.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	categoriesJSON, err := marshalJSON("categories", c.Categories)
	if err != nil {
		return err
	}
	productsJSON, err := marshalJSON("product_ids", c.ProductIDs)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE campaigns
		SET name = $1, slug = $2, description = $3, banner_image = $4, discount_type = $5,
		    discount_value = $6, categories = $7, product_ids = $8, starts_at = $9,
		    ends_at = $10, is_active = $11, priority = $12, updated_at = $13
		WHERE id = $14`

	ct, err := r.db.Exec(ctx, query,
		c.Name,
		c.Slug,
		c.Description,
		c.BannerImage,
		c.DiscountType,
		c.DiscountValue,
		categoriesJSON,
		productsJSON,
		c.StartsAt,
		c.EndsAt,
		c.IsActive,
		c.Priority,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "slug", c.Slug)
		}
		return fmt.Errorf("update campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", c.ID)
	}
	return nil
}

// Delete removes a campaign.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}
	return nil
}

// scanCampaign scans one campaign row. Extra destinations follow the campaign columns.
func scanCampaign(row pgx.Row, extra ...any) (*domain.Campaign, error) {
	var (
		c              domain.Campaign
		categoriesJSON []byte
		productsJSON   []byte
	)

	dest := []any{
		&c.ID,
		&c.Name,
		&c.Slug,
		&c.Description,
		&c.BannerImage,
		&c.DiscountType,
		&c.DiscountValue,
		&categoriesJSON,
		&productsJSON,
		&c.StartsAt,
		&c.EndsAt,
		&c.IsActive,
		&c.Priority,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}

	if err := unmarshalJSON("categories", categoriesJSON, &c.Categories); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("product_ids", productsJSON, &c.ProductIDs); err != nil {
		return nil, err
	}
	if c.Categories == nil {
		c.Categories = []string{}
	}
	if c.ProductIDs == nil {
		c.ProductIDs = []string{}
	}
	return &c, nil
}
