package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/database"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

const reviewColumns = `id, product_id, user_id, user_name, rating, title, comment,
	is_verified_purchase, created_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rv.ID,
		rv.ProductID,
		rv.UserID,
		rv.UserName,
		rv.Rating,
		rv.Title,
		rv.Comment,
		rv.IsVerifiedPurchase,
		rv.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("review", "product_id", rv.ProductID)
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("product", rv.ProductID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	rv, err := scanReview(r.db.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("review", id)
	}
	return rv, err
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// ListByProduct returns a product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, page pagination.Params) ([]domain.Review, int, error) {
	limit, offset := limitOffset(page)
	rows, err := r.db.Query(ctx, `
		SELECT `+reviewColumns+`, count(*) OVER() AS total_count
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list product reviews: %w", err)
	}
	return collectReviews(rows)
}

// List returns all reviews, newest first.
func (r *ReviewRepository) List(ctx context.Context, page pagination.Params) ([]domain.Review, int, error) {
	limit, offset := limitOffset(page)
	rows, err := r.db.Query(ctx, `
		SELECT `+reviewColumns+`, count(*) OVER() AS total_count
		FROM reviews
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return collectReviews(rows)
}

// Summary returns the rating distribution of a product.
func (r *ReviewRepository) Summary(ctx context.Context, productID string) (domain.ReviewSummary, error) {
	summary := domain.NewReviewSummary()

	rows, err := r.db.Query(ctx, `
		SELECT rating, count(*)
		FROM reviews
		WHERE product_id = $1
		GROUP BY rating`, productID)
	if err != nil {
		return summary, fmt.Errorf("summarize reviews: %w", err)
	}
	defer rows.Close()

	var total int
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return summary, fmt.Errorf("scan review summary: %w", err)
		}
		summary.Distribution[rating] = count
		summary.Count += count
		total += rating * count
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate review summary: %w", err)
	}
	if summary.Count > 0 {
		avg := float64(total) / float64(summary.Count)
		summary.Average = float64(int(avg*10+0.5)) / 10
	}
	return summary, nil
}

func collectReviews(rows pgx.Rows) ([]domain.Review, int, error) {
	defer rows.Close()

	var (
		reviews    []domain.Review
		totalCount int
	)
	for rows.Next() {
		rv, err := scanReview(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return reviews, totalCount, nil
}

func scanReview(row pgx.Row, extra ...any) (*domain.Review, error) {
	var rv domain.Review
	dest := []any{
		&rv.ID,
		&rv.ProductID,
		&rv.UserID,
		&rv.UserName,
		&rv.Rating,
		&rv.Title,
		&rv.Comment,
		&rv.IsVerifiedPurchase,
		&rv.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}
	return &rv, nil
}
