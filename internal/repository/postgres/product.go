package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/database"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

const productColumns = `id, name, slug, description, short_description, category, brand,
	price, compare_at_price, sku, stock, images, variants, skin_types, ingredients,
	tags, weight_grams, is_active, is_featured, rating, review_count, created_at, updated_at`

var productSorts = map[string]string{
	domain.SortNewest:    "created_at DESC",
	domain.SortPriceAsc:  "price ASC, created_at DESC",
	domain.SortPriceDesc: "price DESC, created_at DESC",
	domain.SortRating:    "rating DESC, review_count DESC",
	domain.SortPopular:   "sold_count DESC, review_count DESC",
}

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

type productJSON struct {
	images, variants, skinTypes, tags []byte
}

func marshalProduct(p *domain.Product) (productJSON, error) {
	var (
		out productJSON
		err error
	)
	if out.images, err = marshalJSON("images", p.Images); err != nil {
		return out, err
	}
	if out.variants, err = marshalJSON("variants", p.Variants); err != nil {
		return out, err
	}
	if out.skinTypes, err = marshalJSON("skin_types", p.SkinTypes); err != nil {
		return out, err
	}
	if out.tags, err = marshalJSON("tags", p.Tags); err != nil {
		return out, err
	}
	return out, nil
}

// Create inserts a new product into the database.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	js, err := marshalProduct(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23)`

	ctx, end := database.TraceQuery(ctx, "products.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Slug,
		p.Description,
		p.ShortDescription,
		p.Category,
		p.Brand,
		p.Price,
		p.CompareAtPrice,
		p.SKU,
		p.Stock,
		js.images,
		js.variants,
		js.skinTypes,
		p.Ingredients,
		js.tags,
		p.WeightGrams,
		p.IsActive,
		p.IsFeatured,
		p.Rating,
		p.ReviewCount,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "slug", p.Slug)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("product", id)
	}
	return p, err
}

// GetBySlug retrieves a product by its slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("product", slug)
	}
	return p, err
}

// GetByIDs returns the products with the given ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products by ids: %w", err)
	}
	return collectProducts(rows)
}

// SlugExists reports whether slug is taken.
func (r *ProductRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product slug: %w", err)
	}
	return exists, nil
}

// List returns products matching the filter with the total count.
func (r *ProductRepository) List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) (_ []domain.Product, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if !filter.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Brand != "" {
		conditions = append(conditions, fmt.Sprintf("brand = $%d", argIndex))
		args = append(args, filter.Brand)
		argIndex++
	}

	if filter.SkinType != "" {
		conditions = append(conditions, fmt.Sprintf("skin_types @> jsonb_build_array($%d::text)", argIndex))
		args = append(args, filter.SkinType)
		argIndex++
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	if filter.Featured != nil {
		conditions = append(conditions, fmt.Sprintf("is_featured = $%d", argIndex))
		args = append(args, *filter.Featured)
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy, ok := productSorts[filter.Sort]
	if !ok {
		orderBy = productSorts[domain.SortNewest]
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, orderBy, argIndex, argIndex+1,
	)

	limit, offset := limitOffset(page)
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "products.list", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   []domain.Product
		totalCount int
	)
	for rows.Next() {
		p, err := scanProduct(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, totalCount, nil
}

// Featured returns active featured products, best rated first.
func (r *ProductRepository) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = TRUE AND is_featured = TRUE
		ORDER BY rating DESC, created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list featured products: %w", err)
	}
	return collectProducts(rows)
}

// Categories returns active categories with product counts.
func (r *ProductRepository) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT category, count(*)
		FROM products
		WHERE is_active = TRUE
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.CategoryCount{}
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return categories, nil
}

// Update modifies an existing product.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	js, err := marshalProduct(p)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE products
		SET name = $1, slug = $2, description = $3, short_description = $4, category = $5,
		    brand = $6, price = $7, compare_at_price = $8, sku = $9, stock = $10, images = $11,
		    variants = $12, skin_types = $13, ingredients = $14, tags = $15, weight_grams = $16,
		    is_active = $17, is_featured = $18, updated_at = $19
		WHERE id = $20`

	ct, err := r.db.Exec(ctx, query,
		p.Name,
		p.Slug,
		p.Description,
		p.ShortDescription,
		p.Category,
		p.Brand,
		p.Price,
		p.CompareAtPrice,
		p.SKU,
		p.Stock,
		js.images,
		js.variants,
		js.skinTypes,
		p.Ingredients,
		js.tags,
		p.WeightGrams,
		p.IsActive,
		p.IsFeatured,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "slug", p.Slug)
		}
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID)
	}
	return nil
}

// Deactivate sets is_active to false.
func (r *ProductRepository) Deactivate(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// SetStock overwrites the stock level.
func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int) error {
	ct, err := r.db.Exec(ctx, `UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2`, stock, id)
	if err != nil {
		if database.IsCheckViolation(err) {
			return apperrors.InvalidInput("stock cannot be negative")
		}
		return fmt.Errorf("set product stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// LockForUpdate loads the products with FOR UPDATE, ordered by id so
// concurrent checkouts acquire locks in the same order.
func (r *ProductRepository) LockForUpdate(ctx context.Context, ids []string) (_ []domain.Product, err error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "products.lock", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return collectProducts(rows)
}

// DecrementStock removes qty units. The guard in the WHERE clause keeps
// stock non-negative even without a prior lock.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE products
		SET stock = stock - $1, sold_count = sold_count + $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1`, qty, id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict("insufficient stock for product " + id)
	}
	return nil
}

// RestoreStock adds qty units back.
func (r *ProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE products
		SET stock = stock + $1, sold_count = GREATEST(sold_count - $1, 0), updated_at = NOW()
		WHERE id = $2`, qty, id)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// RecomputeRating refreshes rating (one decimal) and review_count.
func (r *ProductRepository) RecomputeRating(ctx context.Context, productID string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE products p
		SET rating = COALESCE(s.avg_rating, 0), review_count = s.cnt, updated_at = NOW()
		FROM (
			SELECT ROUND(AVG(rating)::numeric, 1)::float8 AS avg_rating, count(*) AS cnt
			FROM reviews
			WHERE product_id = $1
		) s
		WHERE p.id = $1`, productID)
	if err != nil {
		return fmt.Errorf("recompute rating: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", productID)
	}
	return nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// scanProduct scans one product row. Extra destinations follow the product columns.
func scanProduct(row pgx.Row, extra ...any) (*domain.Product, error) {
	var (
		p  domain.Product
		js productJSON
	)

	dest := []any{
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&p.ShortDescription,
		&p.Category,
		&p.Brand,
		&p.Price,
		&p.CompareAtPrice,
		&p.SKU,
		&p.Stock,
		&js.images,
		&js.variants,
		&js.skinTypes,
		&p.Ingredients,
		&js.tags,
		&p.WeightGrams,
		&p.IsActive,
		&p.IsFeatured,
		&p.Rating,
		&p.ReviewCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	if err := unmarshalJSON("images", js.images, &p.Images); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("variants", js.variants, &p.Variants); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("skin_types", js.skinTypes, &p.SkinTypes); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("tags", js.tags, &p.Tags); err != nil {
		return nil, err
	}
	if p.Images == nil {
		p.Images = []domain.ProductImage{}
	}
	if p.Variants == nil {
		p.Variants = []domain.Variant{}
	}
	if p.SkinTypes == nil {
		p.SkinTypes = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}
