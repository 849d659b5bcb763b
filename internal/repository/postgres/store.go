// Package postgres implements the repository ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/glowskin/internal/repository"
	"github.com/utafrali/glowskin/pkg/database"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// Store implements repository.Store on a pool or a transaction.
type Store struct {
	db database.DBTX
}

// NewStore creates a Store bound to db.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Users() repository.UserRepository         { return NewUserRepository(s.db) }
func (s *Store) Products() repository.ProductRepository   { return NewProductRepository(s.db) }
func (s *Store) Orders() repository.OrderRepository       { return NewOrderRepository(s.db) }
func (s *Store) Coupons() repository.CouponRepository     { return NewCouponRepository(s.db) }
func (s *Store) Campaigns() repository.CampaignRepository { return NewCampaignRepository(s.db) }
func (s *Store) Reviews() repository.ReviewRepository     { return NewReviewRepository(s.db) }

// InTx runs fn with a Store bound to a new transaction. Nested calls open a
// savepoint through pgx.Tx.Begin.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

// limitOffset converts page params to LIMIT/OFFSET values.
func limitOffset(p pagination.Params) (int, int) {
	limit := p.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if p.Page > 1 {
		offset = (p.Page - 1) * limit
	}
	return limit, offset
}

// marshalJSON encodes v for a JSONB column, mapping nil slices to "[]".
func marshalJSON(field string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", field, err)
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

// unmarshalJSON decodes a JSONB column when present.
func unmarshalJSON(field string, data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return nil
}

// nullable maps the empty string to SQL NULL for optional UUID columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// orEmpty dereferences a nullable text column.
func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
