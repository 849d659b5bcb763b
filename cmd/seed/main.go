// Package main seeds a development database with a skincare catalog, a few
// coupons and two running campaigns. The catalog and campaigns are only
// seeded into an empty catalog; coupons that already exist are skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository/postgres"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/migrations"
	"github.com/utafrali/glowskin/pkg/database"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/logger"
	"github.com/utafrali/glowskin/pkg/pagination"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.NewWithOptions(logger.Options{Service: "glowskin-seed", Level: cfg.LogLevel, Format: "text"}, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("seed complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres.Database(), log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	productRepo := postgres.NewProductRepository(pool)
	campaignRepo := postgres.NewCampaignRepository(pool)
	products := service.NewProductService(productRepo, campaignRepo, nil, nil, log)
	coupons := service.NewCouponService(postgres.NewCouponRepository(pool), log)
	campaigns := service.NewCampaignService(campaignRepo, log)

	serumIDs, err := seedProducts(ctx, products, log)
	if err != nil {
		return err
	}
	if err := seedCoupons(ctx, coupons, log); err != nil {
		return err
	}
	if len(serumIDs) == 0 {
		return nil
	}
	return seedCampaigns(ctx, campaigns, serumIDs, log)
}

func boolPtr(b bool) *bool { return &b }

func catalog() []service.CreateProductInput {
	return []service.CreateProductInput{
		{
			Name:             "Niacinamide 10% + Zinc Serum",
			ShortDescription: "Balances oil and refines pores.",
			Description:      "A lightweight water-based serum with 10% niacinamide and 1% zinc PCA for visibly smaller pores and a more even tone.",
			Category:         "serums",
			Brand:            "GlowSkin",
			Price:            59900,
			CompareAtPrice:   69900,
			SKU:              "GS-SER-NIA-30",
			Stock:            120,
			SkinTypes:        []string{"oily", "combination"},
			Ingredients:      "Aqua, Niacinamide, Zinc PCA, Glycerin, Pentylene Glycol",
			Tags:             []string{"pores", "oil-control", "bestseller"},
			WeightGrams:      90,
			IsFeatured:       true,
			Images:           []domain.ProductImage{{URL: "https://cdn.glowskin.in/products/niacinamide-serum.jpg", Alt: "Niacinamide serum bottle"}},
		},
		{
			Name:             "Vitamin C 15% Brightening Serum",
			ShortDescription: "Fades dark spots and boosts radiance.",
			Description:      "Stabilised ethyl ascorbic acid with ferulic acid and vitamin E for brighter, more even skin.",
			Category:         "serums",
			Brand:            "GlowSkin",
			Price:            79900,
			SKU:              "GS-SER-VTC-30",
			Stock:            80,
			SkinTypes:        []string{"normal", "dry", "combination"},
			Ingredients:      "Aqua, Ethyl Ascorbic Acid, Ferulic Acid, Tocopherol, Glycerin",
			Tags:             []string{"brightening", "pigmentation"},
			WeightGrams:      95,
			IsFeatured:       true,
		},
		{
			Name:             "Ceramide Barrier Repair Moisturiser",
			ShortDescription: "Rich cream for a compromised barrier.",
			Description:      "Three essential ceramides with cholesterol and fatty acids to restore the skin barrier overnight.",
			Category:         "moisturisers",
			Brand:            "GlowSkin",
			Price:            64900,
			SKU:              "GS-MOI-CER-50",
			Stock:            60,
			SkinTypes:        []string{"dry", "sensitive"},
			Ingredients:      "Aqua, Ceramide NP, Ceramide AP, Ceramide EOP, Cholesterol, Squalane",
			Tags:             []string{"barrier", "hydration"},
			WeightGrams:      140,
		},
		{
			Name:             "Oil-Free Gel Moisturiser",
			ShortDescription: "Weightless hydration for oily skin.",
			Description:      "A cooling gel with hyaluronic acid and green tea that hydrates without clogging pores.",
			Category:         "moisturisers",
			Brand:            "GlowSkin",
			Price:            44900,
			SKU:              "GS-MOI-GEL-50",
			Stock:            8,
			SkinTypes:        []string{"oily", "acne-prone"},
			Ingredients:      "Aqua, Sodium Hyaluronate, Camellia Sinensis Leaf Extract, Panthenol",
			Tags:             []string{"hydration", "lightweight"},
			WeightGrams:      120,
		},
		{
			Name:             "SPF 50 PA++++ Invisible Sunscreen",
			ShortDescription: "No white cast, all-day protection.",
			Description:      "A broad-spectrum chemical sunscreen with a matte finish, suitable under makeup.",
			Category:         "sunscreens",
			Brand:            "GlowSkin",
			Price:            54900,
			CompareAtPrice:   59900,
			SKU:              "GS-SUN-050-50",
			Stock:            200,
			SkinTypes:        []string{"normal", "oily", "combination", "dry"},
			Ingredients:      "Aqua, Ethylhexyl Methoxycinnamate, Bis-Ethylhexyloxyphenol Methoxyphenyl Triazine, Niacinamide",
			Tags:             []string{"spf", "daily"},
			WeightGrams:      80,
			IsFeatured:       true,
		},
		{
			Name:             "Salicylic Acid 2% Gentle Cleanser",
			ShortDescription: "Unclogs pores without stripping.",
			Description:      "A low-foam gel cleanser with 2% salicylic acid and oat extract for breakout-prone skin.",
			Category:         "cleansers",
			Brand:            "GlowSkin",
			Price:            34900,
			SKU:              "GS-CLN-SAL-100",
			Stock:            150,
			SkinTypes:        []string{"oily", "acne-prone"},
			Ingredients:      "Aqua, Salicylic Acid, Cocamidopropyl Betaine, Avena Sativa Kernel Extract",
			Tags:             []string{"acne", "exfoliating"},
			WeightGrams:      130,
		},
		{
			Name:             "Retinol 0.3% Night Serum",
			ShortDescription: "Beginner retinol for fine lines.",
			Description:      "Encapsulated retinol with bakuchiol and squalane for smoother texture with minimal irritation.",
			Category:         "serums",
			Brand:            "GlowSkin",
			Price:            89900,
			SKU:              "GS-SER-RET-30",
			Stock:            0,
			SkinTypes:        []string{"normal", "dry"},
			Ingredients:      "Squalane, Retinol, Bakuchiol, Tocopherol",
			Tags:             []string{"anti-ageing", "night"},
			WeightGrams:      90,
			IsActive:         boolPtr(false),
		},
	}
}

// seedProducts creates the catalog when it is empty and returns the ids of
// the seeded serums.
func seedProducts(ctx context.Context, products *service.ProductService, log *slog.Logger) ([]string, error) {
	_, total, err := products.ListProducts(ctx, domain.ProductFilter{IncludeInactive: true}, pagination.Params{Page: 1, PerPage: 1})
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	if total > 0 {
		log.Info("catalog already seeded, skipping products", slog.Int("products", total))
		return nil, nil
	}

	var serums []string
	for _, in := range catalog() {
		p, err := products.CreateProduct(ctx, &in)
		if err != nil {
			return nil, fmt.Errorf("create product %q: %w", in.Name, err)
		}
		if p.Category == "serums" && p.IsActive {
			serums = append(serums, p.ID)
		}
		log.Info("product created", slog.String("slug", p.Slug), slog.Int64("price", p.Price))
	}
	return serums, nil
}

func seedCoupons(ctx context.Context, coupons *service.CouponService, log *slog.Logger) error {
	until := time.Now().UTC().AddDate(0, 3, 0)
	inputs := []service.CouponInput{
		{Code: "GLOW10", Description: "10% off your order", Type: domain.CouponPercentage, Value: 10, MaxDiscount: 20000},
		{Code: "FIRST150", Description: "₹150 off your first order", Type: domain.CouponFixed, Value: 15000, MinOrderAmount: 99900, PerUserLimit: 1},
		{Code: "FREESHIP", Description: "Free shipping", Type: domain.CouponFreeShipping, ValidUntil: &until},
	}
	for i := range inputs {
		c, err := coupons.CreateCoupon(ctx, &inputs[i])
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			log.Info("coupon exists, skipping", slog.String("code", inputs[i].Code))
			continue
		}
		if err != nil {
			return fmt.Errorf("create coupon %s: %w", inputs[i].Code, err)
		}
		log.Info("coupon created", slog.String("code", c.Code))
	}
	return nil
}

func seedCampaigns(ctx context.Context, campaigns *service.CampaignService, serumIDs []string, log *slog.Logger) error {
	now := time.Now().UTC()
	inputs := []service.CampaignInput{
		{
			Name:          "Sunscreen Season",
			Description:   "15% off every sunscreen",
			DiscountType:  domain.DiscountPercentage,
			DiscountValue: 15,
			Categories:    []string{"sunscreens"},
			StartsAt:      now.Add(-time.Hour),
			EndsAt:        now.AddDate(0, 1, 0),
			Priority:      10,
		},
		{
			Name:          "Serum Week",
			Description:   "₹100 off selected serums",
			DiscountType:  domain.DiscountFixed,
			DiscountValue: 10000,
			ProductIDs:    serumIDs,
			StartsAt:      now.Add(-time.Hour),
			EndsAt:        now.AddDate(0, 0, 7),
			Priority:      20,
		},
	}
	for i := range inputs {
		c, err := campaigns.CreateCampaign(ctx, &inputs[i])
		if err != nil {
			return fmt.Errorf("create campaign %q: %w", inputs[i].Name, err)
		}
		log.Info("campaign created", slog.String("slug", c.Slug))
	}
	return nil
}
