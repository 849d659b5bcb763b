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

const couponColumns = `id, code, description, type, value, min_order_amount, max_discount,
	usage_limit, used_count, per_user_limit, valid_from, valid_until, is_active,
	created_at, updated_at`

// CouponRepository implements repository.CouponRepository using PostgreSQL.
type CouponRepository struct {
	db database.DBTX
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(db database.DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

// Create inserts a new coupon into the database.
func (r *CouponRepository) Create(ctx context.Context, c *domain.Coupon) error {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Description,
		c.Type,
		c.Value,
		c.MinOrderAmount,
		c.MaxDiscount,
		c.UsageLimit,
		c.UsedCount,
		c.PerUserLimit,
		c.ValidFrom,
		c.ValidUntil,
		c.IsActive,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("coupon", "code", c.Code)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// GetByID retrieves a coupon by its ID.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	c, err := scanCoupon(r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("coupon", id)
	}
	return c, err
}

// GetByCode retrieves a coupon by its code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	c, err := scanCoupon(r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("coupon", code)
	}
	return c, err
}

// LockByCode loads a coupon with FOR UPDATE.
func (r *CouponRepository) LockByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	c, err := scanCoupon(r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, code))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("coupon", code)
	}
	return c, err
}

// List returns coupons, newest first, with the total count.
func (r *CouponRepository) List(ctx context.Context, page pagination.Params) ([]domain.Coupon, int, error) {
	limit, offset := limitOffset(page)
	rows, err := r.db.Query(ctx, `
		SELECT `+couponColumns+`, count(*) OVER() AS total_count
		FROM coupons
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var (
		coupons    []domain.Coupon
		totalCount int
	)
	for rows.Next() {
		c, err := scanCoupon(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate coupon rows: %w", err)
	}
	if coupons == nil {
		coupons = []domain.Coupon{}
	}
	return coupons, totalCount, nil
}

// Update modifies an existing coupon. used_count is left to IncrementUsage.
func (r *CouponRepository) Update(ctx context.Context, c *domain.Coupon) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE coupons
		SET code = $1, description = $2, type = $3, value = $4, min_order_amount = $5,
		    max_discount = $6, usage_limit = $7, per_user_limit = $8, valid_from = $9,
		    valid_until = $10, is_active = $11, updated_at = $12
		WHERE id = $13`

	ct, err := r.db.Exec(ctx, query,
		c.Code,
		c.Description,
		c.Type,
		c.Value,
		c.MinOrderAmount,
		c.MaxDiscount,
		c.UsageLimit,
		c.PerUserLimit,
		c.ValidFrom,
		c.ValidUntil,
		c.IsActive,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("coupon", "code", c.Code)
		}
		return fmt.Errorf("update coupon: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("coupon", c.ID)
	}
	return nil
}

// Delete removes a coupon and its usage records.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("coupon", id)
	}
	return nil
}

// IncrementUsage atomically increments used_count.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("coupon", id)
	}
	return nil
}

// RecordUsage records a coupon redemption.
func (r *CouponRepository) RecordUsage(ctx context.Context, u *domain.CouponUsage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO coupon_usages (id, coupon_id, user_id, email, order_id, discount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID,
		u.CouponID,
		nullable(u.UserID),
		u.Email,
		u.OrderID,
		u.Discount,
		u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	return nil
}

// UserUsageCount counts prior redemptions of couponID by the account userID
// or the customer email. Guests are matched by email alone.
func (r *CouponRepository) UserUsageCount(ctx context.Context, couponID, userID, email string) (int, error) {
	var (
		where string
		args  = []any{couponID}
	)
	switch {
	case userID != "" && email != "":
		where = "(user_id = $2 OR email = $3)"
		args = append(args, userID, email)
	case userID != "":
		where = "user_id = $2"
		args = append(args, userID)
	case email != "":
		where = "email = $2"
		args = append(args, email)
	default:
		return 0, nil
	}
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return n, nil
}

// ReleaseUsage deletes the usage row of orderID and decrements used_count.
func (r *CouponRepository) ReleaseUsage(ctx context.Context, couponID, orderID string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2`, couponID, orderID)
	if err != nil {
		return fmt.Errorf("delete coupon usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil
	}
	_, err = r.db.Exec(ctx, `
		UPDATE coupons
		SET used_count = GREATEST(used_count - 1, 0), updated_at = NOW()
		WHERE id = $1`, couponID)
	if err != nil {
		return fmt.Errorf("release coupon usage: %w", err)
	}
	return nil
}

// scanCoupon scans one coupon row. Extra destinations follow the coupon columns.
func scanCoupon(row pgx.Row, extra ...any) (*domain.Coupon, error) {
	var c domain.Coupon
	dest := []any{
		&c.ID,
		&c.Code,
		&c.Description,
		&c.Type,
		&c.Value,
		&c.MinOrderAmount,
		&c.MaxDiscount,
		&c.UsageLimit,
		&c.UsedCount,
		&c.PerUserLimit,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	return &c, nil
}
