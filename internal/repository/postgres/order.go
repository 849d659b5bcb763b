package postgres

import (
	"context"
	"encoding/json"
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

const orderColumns = `id, order_number, user_id, customer, shipping_address, items, subtotal,
	discount, shipping_fee, total, currency, coupon_code, payment_method, payment_status,
	payment, status, status_history, shipment, stock_released, notes, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

type orderJSON struct {
	customer, address, items, payment, history, shipment []byte
}

func marshalOrder(o *domain.Order) (orderJSON, error) {
	var (
		out orderJSON
		err error
	)
	if out.customer, err = json.Marshal(o.Customer); err != nil {
		return out, fmt.Errorf("marshal customer: %w", err)
	}
	if out.address, err = json.Marshal(o.ShippingAddress); err != nil {
		return out, fmt.Errorf("marshal shipping_address: %w", err)
	}
	if out.items, err = marshalJSON("items", o.Items); err != nil {
		return out, err
	}
	if out.payment, err = json.Marshal(o.Payment); err != nil {
		return out, fmt.Errorf("marshal payment: %w", err)
	}
	if out.history, err = marshalJSON("status_history", o.StatusHistory); err != nil {
		return out, err
	}
	if o.Shipment != nil {
		if out.shipment, err = json.Marshal(o.Shipment); err != nil {
			return out, fmt.Errorf("marshal shipment: %w", err)
		}
	}
	return out, nil
}

// Create inserts a new order into the database.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	js, err := marshalOrder(o)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22)`

	ctx, end := database.TraceQuery(ctx, "orders.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		o.ID,
		o.OrderNumber,
		nullable(o.UserID),
		js.customer,
		js.address,
		js.items,
		o.Subtotal,
		o.Discount,
		o.ShippingFee,
		o.Total,
		o.Currency,
		o.CouponCode,
		o.PaymentMethod,
		o.PaymentStatus,
		js.payment,
		o.Status,
		js.history,
		js.shipment,
		o.StockReleased,
		o.Notes,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("order", "order_number", o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByNumber retrieves an order by its order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getOne(ctx, "order_number = $1", number)
}

// GetByGatewayOrderID retrieves an order by the gateway order reference.
func (r *OrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	return r.getOne(ctx, "payment ->> 'gateway_order_id' = $1", gatewayOrderID)
}

// GetByAWB retrieves an order by courier AWB.
func (r *OrderRepository) GetByAWB(ctx context.Context, awb string) (*domain.Order, error) {
	return r.getOne(ctx, "shipment ->> 'awb_code' = $1", awb)
}

// LockByID loads an order with FOR UPDATE.
func (r *OrderRepository) LockByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("order", id)
	}
	return o, err
}

func (r *OrderRepository) getOne(ctx context.Context, where string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("order", fmt.Sprint(arg))
	}
	return o, err
}

// Update persists the mutable state of an order.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) (err error) {
	js, err := marshalOrder(o)
	if err != nil {
		return err
	}

	o.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, payment = $3, status_history = $4,
		    shipment = $5, stock_released = $6, notes = $7, updated_at = $8
		WHERE id = $9`

	ctx, end := database.TraceQuery(ctx, "orders.update", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		o.Status,
		o.PaymentStatus,
		js.payment,
		js.history,
		js.shipment,
		o.StockReleased,
		o.Notes,
		o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", o.ID)
	}
	return nil
}

// List returns orders matching the filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter, page pagination.Params) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, filter.UserID)
		argIndex++
	}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", argIndex))
		args = append(args, filter.PaymentStatus)
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(order_number ILIKE $%d OR customer ->> 'email' ILIKE $%d OR customer ->> 'name' ILIKE $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	limit, offset := limitOffset(page)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders     []domain.Order
		totalCount int
	)
	for rows.Next() {
		o, err := scanOrder(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, totalCount, nil
}

// HasDeliveredItem checks the item snapshots of the user's delivered orders.
func (r *OrderRepository) HasDeliveredItem(ctx context.Context, userID, productID string) (bool, error) {
	probe, err := json.Marshal([]map[string]string{{"product_id": productID}})
	if err != nil {
		return false, fmt.Errorf("marshal item probe: %w", err)
	}

	var exists bool
	err = r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE user_id = $1 AND status = $2 AND items @> $3::jsonb
		)`, userID, domain.OrderDelivered, probe).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check delivered item: %w", err)
	}
	return exists, nil
}

// scanOrder scans one order row. Extra destinations follow the order columns.
func scanOrder(row pgx.Row, extra ...any) (*domain.Order, error) {
	var (
		o      domain.Order
		userID *string
		js     orderJSON
	)

	dest := []any{
		&o.ID,
		&o.OrderNumber,
		&userID,
		&js.customer,
		&js.address,
		&js.items,
		&o.Subtotal,
		&o.Discount,
		&o.ShippingFee,
		&o.Total,
		&o.Currency,
		&o.CouponCode,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&js.payment,
		&o.Status,
		&js.history,
		&js.shipment,
		&o.StockReleased,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.UserID = orEmpty(userID)
	if err := unmarshalJSON("customer", js.customer, &o.Customer); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("shipping_address", js.address, &o.ShippingAddress); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("items", js.items, &o.Items); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("payment", js.payment, &o.Payment); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("status_history", js.history, &o.StatusHistory); err != nil {
		return nil, err
	}
	if len(js.shipment) > 0 && string(js.shipment) != "null" {
		o.Shipment = &domain.Shipment{}
		if err := unmarshalJSON("shipment", js.shipment, o.Shipment); err != nil {
			return nil, err
		}
	}
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	if o.StatusHistory == nil {
		o.StatusHistory = []domain.StatusEntry{}
	}
	return &o, nil
}
