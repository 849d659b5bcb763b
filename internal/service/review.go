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

// ReviewService manages product reviews and keeps product ratings current.
type ReviewService struct {
	store    repository.Store
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(store repository.Store, producer EventPublisher, logger *slog.Logger) *ReviewService {
	return &ReviewService{store: store, producer: producer, logger: logger, now: utcNow}
}

// CreateReviewInput holds the parameters for reviewing a product.
type CreateReviewInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Title     string `json:"title" validate:"max=150"`
	Comment   string `json:"comment" validate:"max=2000"`
}

// ProductReviews is a page of reviews with the product summary.
type ProductReviews struct {
	Reviews []domain.Review      `json:"reviews"`
	Total   int                  `json:"total"`
	Summary domain.ReviewSummary `json:"summary"`
}

// ListByProduct returns a page of a product's reviews and its rating summary.
func (s *ReviewService) ListByProduct(ctx context.Context, productID string, page pagination.Params) (*ProductReviews, error) {
	reviews, total, err := s.store.Reviews().ListByProduct(ctx, productID, page)
	if err != nil {
		return nil, fmt.Errorf("list product reviews: %w", err)
	}
	summary, err := s.store.Reviews().Summary(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("summarise product reviews: %w", err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return &ProductReviews{Reviews: reviews, Total: total, Summary: summary}, nil
}

// CreateReview adds the user's review of a product. A user reviews a product
// once; the review is flagged verified when the user received the product.
func (s *ReviewService) CreateReview(ctx context.Context, userID string, input *CreateReviewInput) (*domain.Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, apperrors.InvalidInput("rating must be between 1 and 5")
	}
	product, err := s.store.Products().GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product for review: %w", err)
	}
	if !product.IsActive {
		return nil, apperrors.NotFound("product", input.ProductID)
	}
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get reviewer: %w", err)
	}
	verified, err := s.store.Orders().HasDeliveredItem(ctx, userID, input.ProductID)
	if err != nil {
		return nil, fmt.Errorf("check verified purchase: %w", err)
	}

	review := &domain.Review{
		ID:                 uuid.New().String(),
		ProductID:          input.ProductID,
		UserID:             userID,
		UserName:           user.Name,
		Rating:             input.Rating,
		Title:              strings.TrimSpace(input.Title),
		Comment:            strings.TrimSpace(input.Comment),
		IsVerifiedPurchase: verified,
		CreatedAt:          s.now(),
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Reviews().Create(ctx, review); err != nil {
			return err
		}
		return tx.Products().RecomputeRating(ctx, review.ProductID)
	})
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	publish(ctx, s.producer, s.logger, domain.EventReviewCreated, review.ID, aggregateReview, domain.ReviewEvent{
		ReviewID:  review.ID,
		ProductID: review.ProductID,
		UserID:    review.UserID,
		Rating:    review.Rating,
	})

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("product_id", review.ProductID),
		slog.Int("rating", review.Rating),
	)
	return review, nil
}

// DeleteReview removes a review. Only its author or an admin may delete it.
func (s *ReviewService) DeleteReview(ctx context.Context, reviewID, userID string, isAdmin bool) error {
	review, err := s.store.Reviews().GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("get review: %w", err)
	}
	if !isAdmin && review.UserID != userID {
		return apperrors.Forbidden("you can only delete your own reviews")
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Reviews().Delete(ctx, reviewID); err != nil {
			return err
		}
		return tx.Products().RecomputeRating(ctx, review.ProductID)
	})
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", reviewID),
		slog.String("product_id", review.ProductID),
	)
	return nil
}

// ListReviews returns a page of all reviews for moderation.
func (s *ReviewService) ListReviews(ctx context.Context, page pagination.Params) ([]domain.Review, int, error) {
	reviews, total, err := s.store.Reviews().List(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, total, nil
}
