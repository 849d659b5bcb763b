package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
	"github.com/utafrali/glowskin/internal/search"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
	"github.com/utafrali/glowskin/pkg/slug"
)

// maxSlugAttempts bounds the numeric suffixes tried on a slug collision.
const maxSlugAttempts = 50

// Product events carry one of these actions.
const (
	productCreated      = "created"
	productUpdated      = "updated"
	productDeleted      = "deleted"
	productStockUpdated = "stock_updated"
)

// ProductService implements the business logic for catalogue operations.
type ProductService struct {
	repo      repository.ProductRepository
	campaigns repository.CampaignRepository
	search    search.Engine
	producer  EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewProductService creates a new product service. engine may be nil, in
// which case search falls back to the database listing.
func NewProductService(
	repo repository.ProductRepository,
	campaigns repository.CampaignRepository,
	engine search.Engine,
	producer EventPublisher,
	logger *slog.Logger,
) *ProductService {
	return &ProductService{
		repo:      repo,
		campaigns: campaigns,
		search:    engine,
		producer:  producer,
		logger:    logger,
		now:       utcNow,
	}
}

// CreateProductInput holds the parameters for creating a product.
type CreateProductInput struct {
	Name             string                `json:"name" validate:"required,max=200"`
	Description      string                `json:"description" validate:"required"`
	ShortDescription string                `json:"short_description" validate:"max=300"`
	Category         string                `json:"category" validate:"required,max=100"`
	Brand            string                `json:"brand" validate:"max=100"`
	Price            int64                 `json:"price" validate:"gt=0"`
	CompareAtPrice   int64                 `json:"compare_at_price" validate:"gte=0"`
	SKU              string                `json:"sku" validate:"max=64"`
	Stock            int                   `json:"stock" validate:"gte=0"`
	Images           []domain.ProductImage `json:"images" validate:"dive"`
	Variants         []domain.Variant      `json:"variants" validate:"dive"`
	SkinTypes        []string              `json:"skin_types"`
	Ingredients      string                `json:"ingredients"`
	Tags             []string              `json:"tags"`
	WeightGrams      int                   `json:"weight_grams" validate:"gte=0"`
	IsActive         *bool                 `json:"is_active"`
	IsFeatured       bool                  `json:"is_featured"`
}

// UpdateProductInput holds the parameters for updating a product. Nil fields
// are left unchanged.
type UpdateProductInput struct {
	Name             *string               `json:"name" validate:"omitempty,max=200"`
	Description      *string               `json:"description"`
	ShortDescription *string               `json:"short_description" validate:"omitempty,max=300"`
	Category         *string               `json:"category" validate:"omitempty,max=100"`
	Brand            *string               `json:"brand" validate:"omitempty,max=100"`
	Price            *int64                `json:"price" validate:"omitempty,gt=0"`
	CompareAtPrice   *int64                `json:"compare_at_price" validate:"omitempty,gte=0"`
	SKU              *string               `json:"sku" validate:"omitempty,max=64"`
	Stock            *int                  `json:"stock" validate:"omitempty,gte=0"`
	Images           []domain.ProductImage `json:"images" validate:"omitempty,dive"`
	Variants         []domain.Variant      `json:"variants" validate:"omitempty,dive"`
	SkinTypes        []string              `json:"skin_types"`
	Ingredients      *string               `json:"ingredients"`
	Tags             []string              `json:"tags"`
	WeightGrams      *int                  `json:"weight_grams" validate:"omitempty,gte=0"`
	IsActive         *bool                 `json:"is_active"`
	IsFeatured       *bool                 `json:"is_featured"`
}

// CreateProduct creates a product with a unique slug derived from its name.
func (s *ProductService) CreateProduct(ctx context.Context, input *CreateProductInput) (*domain.Product, error) {
	if input.Price <= 0 {
		return nil, apperrors.InvalidInput("price must be greater than 0")
	}
	if input.CompareAtPrice != 0 && input.CompareAtPrice < input.Price {
		return nil, apperrors.InvalidInput("compare_at_price must not be below price")
	}

	productSlug, err := s.uniqueSlug(ctx, input.Name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	product := &domain.Product{
		ID:               uuid.New().String(),
		Name:             input.Name,
		Slug:             productSlug,
		Description:      input.Description,
		ShortDescription: input.ShortDescription,
		Category:         input.Category,
		Brand:            input.Brand,
		Price:            input.Price,
		CompareAtPrice:   input.CompareAtPrice,
		SKU:              input.SKU,
		Stock:            input.Stock,
		Images:           orEmptyImages(input.Images),
		Variants:         orEmptyVariants(input.Variants),
		SkinTypes:        orEmptyStrings(input.SkinTypes),
		Ingredients:      input.Ingredients,
		Tags:             orEmptyStrings(input.Tags),
		WeightGrams:      input.WeightGrams,
		IsActive:         input.IsActive == nil || *input.IsActive,
		IsFeatured:       input.IsFeatured,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.index(ctx, product)
	s.publishProduct(ctx, product, productCreated)

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("slug", product.Slug),
	)

	return product, nil
}

// GetProduct retrieves a product by slug or id with its campaign price.
// Inactive products are hidden unless includeInactive is set.
func (s *ProductService) GetProduct(ctx context.Context, slugOrID string, includeInactive bool) (*domain.Product, error) {
	var (
		product *domain.Product
		err     error
	)
	if _, perr := uuid.Parse(slugOrID); perr == nil {
		product, err = s.repo.GetByID(ctx, slugOrID)
	} else {
		product, err = s.repo.GetBySlug(ctx, slugOrID)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !product.IsActive && !includeInactive {
		return nil, apperrors.NotFound("product", slugOrID)
	}

	products := []domain.Product{*product}
	if err := s.applyCampaigns(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// ListProducts returns a priced page of products matching the filter.
func (s *ProductService) ListProducts(ctx context.Context, filter domain.ProductFilter, page pagination.Params) ([]domain.Product, int, error) {
	if filter.Sort != "" && !domain.IsValidSort(filter.Sort) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid sort %q", filter.Sort))
	}
	products, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	if err := s.applyCampaigns(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// SearchProducts runs a full-text search. When no engine is configured or
// the engine fails, the query runs as an ILIKE listing instead.
func (s *ProductService) SearchProducts(ctx context.Context, q search.Query) ([]domain.Product, int, error) {
	if q.Sort != "" && !domain.IsValidSort(q.Sort) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid sort %q", q.Sort))
	}
	if s.search != nil {
		products, total, err := s.searchEngine(ctx, q)
		if err == nil {
			return products, total, nil
		}
		s.logger.WarnContext(ctx, "search engine unavailable, falling back to database",
			slog.String("query", q.Text),
			slog.String("error", err.Error()),
		)
	}

	page := pagination.Params{Page: q.Page, PerPage: q.PerPage, Offset: (q.Page - 1) * q.PerPage}
	return s.ListProducts(ctx, domain.ProductFilter{
		Search:   q.Text,
		Category: q.Category,
		SkinType: q.SkinType,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Sort:     q.Sort,
	}, page)
}

func (s *ProductService) searchEngine(ctx context.Context, q search.Query) ([]domain.Product, int, error) {
	ids, total, err := s.search.Search(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []domain.Product{}, total, nil
	}
	found, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("load search hits: %w", err)
	}

	byID := make(map[string]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && p.IsActive {
			products = append(products, p)
		}
	}
	if err := s.applyCampaigns(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// FeaturedProducts returns up to limit priced featured products.
func (s *ProductService) FeaturedProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 || limit > 50 {
		limit = 8
	}
	products, err := s.repo.Featured(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("featured products: %w", err)
	}
	if err := s.applyCampaigns(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Categories returns the active categories with product counts.
func (s *ProductService) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	cats, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// UpdateProduct applies the non-nil fields of input. The slug is kept so
// existing links stay valid.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, input *UpdateProductInput) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product for update: %w", err)
	}

	if input.Name != nil {
		product.Name = *input.Name
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.ShortDescription != nil {
		product.ShortDescription = *input.ShortDescription
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Brand != nil {
		product.Brand = *input.Brand
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.CompareAtPrice != nil {
		product.CompareAtPrice = *input.CompareAtPrice
	}
	if input.SKU != nil {
		product.SKU = *input.SKU
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Images != nil {
		product.Images = input.Images
	}
	if input.Variants != nil {
		product.Variants = input.Variants
	}
	if input.SkinTypes != nil {
		product.SkinTypes = input.SkinTypes
	}
	if input.Ingredients != nil {
		product.Ingredients = *input.Ingredients
	}
	if input.Tags != nil {
		product.Tags = input.Tags
	}
	if input.WeightGrams != nil {
		product.WeightGrams = *input.WeightGrams
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if input.IsFeatured != nil {
		product.IsFeatured = *input.IsFeatured
	}

	if product.Name == "" {
		return nil, apperrors.InvalidInput("product name is required")
	}
	if product.CompareAtPrice != 0 && product.CompareAtPrice < product.Price {
		return nil, apperrors.InvalidInput("compare_at_price must not be below price")
	}

	product.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.index(ctx, product)
	s.publishProduct(ctx, product, productUpdated)

	s.logger.InfoContext(ctx, "product updated",
		slog.String("product_id", product.ID),
	)

	return product, nil
}

// DeleteProduct soft deletes a product and drops it from the search index.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get product for delete: %w", err)
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if s.search != nil {
		if err := s.search.Delete(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "failed to remove product from search index",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publishProduct(ctx, product, productDeleted)

	s.logger.InfoContext(ctx, "product deleted",
		slog.String("product_id", id),
	)
	return nil
}

// SetStock overwrites the stock level of a product.
func (s *ProductService) SetStock(ctx context.Context, id string, stock int) (*domain.Product, error) {
	if stock < 0 {
		return nil, apperrors.InvalidInput("stock must not be negative")
	}
	if err := s.repo.SetStock(ctx, id, stock); err != nil {
		return nil, fmt.Errorf("set stock: %w", err)
	}
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product after stock update: %w", err)
	}

	s.publishProduct(ctx, product, productStockUpdated)

	s.logger.InfoContext(ctx, "product stock updated",
		slog.String("product_id", id),
		slog.Int("stock", stock),
	)
	return product, nil
}

// Reindex writes every product, active or not, to the search index and
// returns how many documents were indexed.
func (s *ProductService) Reindex(ctx context.Context) (int, error) {
	if s.search == nil {
		return 0, nil
	}
	page := pagination.Params{Page: 1, PerPage: 100}
	indexed := 0
	for {
		page.Offset = (page.Page - 1) * page.PerPage
		products, total, err := s.repo.List(ctx, domain.ProductFilter{IncludeInactive: true}, page)
		if err != nil {
			return indexed, fmt.Errorf("list products for reindex: %w", err)
		}
		for i := range products {
			if err := s.search.Index(ctx, &products[i]); err != nil {
				return indexed, fmt.Errorf("index product %s: %w", products[i].ID, err)
			}
			indexed++
		}
		if len(products) == 0 || page.Page*page.PerPage >= total {
			break
		}
		page.Page++
	}

	s.logger.InfoContext(ctx, "search index rebuilt", slog.Int("products", indexed))
	return indexed, nil
}

func (s *ProductService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Generate(name)
	if base == "" {
		return "", apperrors.InvalidInput("product name must contain letters or digits")
	}
	for n := 1; n <= maxSlugAttempts; n++ {
		candidate := slug.WithSuffix(base, n)
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", apperrors.Conflict(fmt.Sprintf("too many products named %q", name))
}

func (s *ProductService) applyCampaigns(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	now := s.now()
	running, err := s.campaigns.ListRunning(ctx, now)
	if err != nil {
		return fmt.Errorf("list running campaigns: %w", err)
	}
	priceProducts(products, running, now)
	return nil
}

func (s *ProductService) index(ctx context.Context, p *domain.Product) {
	if s.search == nil {
		return
	}
	if err := s.search.Index(ctx, p); err != nil {
		s.logger.ErrorContext(ctx, "failed to index product",
			slog.String("product_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ProductService) publishProduct(ctx context.Context, p *domain.Product, action string) {
	publish(ctx, s.producer, s.logger, domain.EventProductUpdated, p.ID, aggregateProduct, domain.ProductEvent{
		ProductID: p.ID,
		Slug:      p.Slug,
		Action:    action,
	})
}

// priceProducts applies the best running campaign to every product.
func priceProducts(products []domain.Product, campaigns []domain.Campaign, now time.Time) {
	for i := range products {
		domain.ApplyBestCampaign(&products[i], campaigns, now)
	}
}

func orEmptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyImages(v []domain.ProductImage) []domain.ProductImage {
	if v == nil {
		return []domain.ProductImage{}
	}
	return v
}

func orEmptyVariants(v []domain.Variant) []domain.Variant {
	if v == nil {
		return []domain.Variant{}
	}
	return v
}
