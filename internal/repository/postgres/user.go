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

const userColumns = `id, name, email, phone, password_hash, role, addresses, wishlist,
	is_active, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	addressesJSON, err := marshalJSON("addresses", u.Addresses)
	if err != nil {
		return err
	}
	wishlistJSON, err := marshalJSON("wishlist", u.Wishlist)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "users.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Name,
		u.Email,
		u.Phone,
		u.PasswordHash,
		u.Role,
		addressesJSON,
		wishlistJSON,
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by its ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", email)
	}
	return u, err
}

// Update modifies the mutable fields of a user.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	addressesJSON, err := marshalJSON("addresses", u.Addresses)
	if err != nil {
		return err
	}
	wishlistJSON, err := marshalJSON("wishlist", u.Wishlist)
	if err != nil {
		return err
	}

	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET name = $1, phone = $2, role = $3, addresses = $4, wishlist = $5,
		    is_active = $6, updated_at = $7
		WHERE id = $8`

	ct, err := r.db.Exec(ctx, query,
		u.Name,
		u.Phone,
		u.Role,
		addressesJSON,
		wishlistJSON,
		u.IsActive,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// UpdatePassword replaces the password hash of a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// List returns users matching the filter with the total count.
func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter, page pagination.Params) ([]domain.User, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", argIndex, argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIndex))
		args = append(args, filter.Role)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM users
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argIndex, argIndex+1,
	)

	limit, offset := limitOffset(page)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var (
		users      []domain.User
		totalCount int
	)
	for rows.Next() {
		u, err := scanUser(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate user rows: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, totalCount, nil
}

// scanUser scans one user row. Extra destinations follow the user columns.
func scanUser(row pgx.Row, extra ...any) (*domain.User, error) {
	var (
		u             domain.User
		addressesJSON []byte
		wishlistJSON  []byte
	)

	dest := []any{
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&u.Role,
		&addressesJSON,
		&wishlistJSON,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if err := unmarshalJSON("addresses", addressesJSON, &u.Addresses); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("wishlist", wishlistJSON, &u.Wishlist); err != nil {
		return nil, err
	}
	if u.Addresses == nil {
		u.Addresses = []domain.Address{}
	}
	if u.Wishlist == nil {
		u.Wishlist = []string{}
	}
	return &u, nil
}
