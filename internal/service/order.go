package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	"github.com/utafrali/glowskin/internal/repository"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// ShipmentCanceller cancels the courier booking of an order.
type ShipmentCanceller interface {
	CancelShipment(ctx context.Context, order *domain.Order) error
}

// OrderService implements checkout and the order lifecycle.
type OrderService struct {
	store    repository.Store
	keys     repository.OrderKeyStore
	gateways payment.Registry
	shipping ShipmentCanceller
	producer EventPublisher
	cfg      config.StoreConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService creates a new order service. shipping may be nil when
// courier booking is not configured.
func NewOrderService(
	store repository.Store,
	keys repository.OrderKeyStore,
	gateways payment.Registry,
	shipping ShipmentCanceller,
	producer EventPublisher,
	cfg config.StoreConfig,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		store:    store,
		keys:     keys,
		gateways: gateways,
		shipping: shipping,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
		now:      utcNow,
	}
}

// OrderItemInput is one requested order line.
type OrderItemInput struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CreateOrderInput holds the checkout request.
type CreateOrderInput struct {
	Customer        domain.Customer  `json:"customer"`
	ShippingAddress domain.Address   `json:"shipping_address"`
	Items           []OrderItemInput `json:"items" validate:"required,min=1,max=50,dive"`
	CouponCode      string           `json:"coupon_code" validate:"max=40"`
	PaymentMethod   string           `json:"payment_method" validate:"required,oneof=cod razorpay cashfree"`
	Notes           string           `json:"notes" validate:"max=500"`
}

// CreateOrderResult is the placed order plus the gateway checkout payload
// for online payments.
type CreateOrderResult struct {
	Order    *domain.Order     `json:"order"`
	Payment  *payment.Checkout `json:"payment,omitempty"`
	Replayed bool              `json:"-"`
}

// CreateOrder places an order. Stock, pricing and coupon redemption run in
// one transaction with the product and coupon rows locked. A repeated
// idempotencyKey returns the order created by the first request.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, input *CreateOrderInput, idempotencyKey string) (*CreateOrderResult, error) {
	items, err := s.mergeItems(input.Items)
	if err != nil {
		return nil, err
	}
	if !domain.IsValidPaymentMethod(input.PaymentMethod) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	var gateway payment.Gateway
	if input.PaymentMethod != domain.PaymentCOD {
		g, ok := s.gateways.Get(input.PaymentMethod)
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("payment method %s is not available", input.PaymentMethod))
		}
		gateway = g
	}

	key := ""
	if idempotencyKey != "" {
		key = idempotencyScope(userID) + ":" + idempotencyKey
		replay, err := s.reserveKey(ctx, key)
		if err != nil || replay != nil {
			return replay, err
		}
	}
	completed := false
	defer func() {
		if key != "" && !completed {
			if err := s.keys.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.ErrorContext(ctx, "failed to release idempotency key",
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	now := s.now()
	var order *domain.Order
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := s.placeOrder(ctx, tx, userID, input, items, now)
		order = o
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	s.publishOrder(ctx, domain.EventOrderCreated, order, "")
	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.String("payment_method", order.PaymentMethod),
		slog.Int64("total", order.Total),
	)

	result := &CreateOrderResult{Order: order}
	if gateway == nil {
		if err := s.confirmCOD(ctx, order); err != nil {
			return nil, err
		}
	} else {
		checkout, err := s.openCheckout(ctx, gateway, order)
		if err != nil {
			return nil, err
		}
		result.Payment = checkout
	}

	if key != "" {
		if err := s.keys.Complete(ctx, key, order.ID, s.cfg.IdempotencyTTL); err != nil {
			s.logger.ErrorContext(ctx, "failed to record idempotency key",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		} else {
			completed = true
		}
	}
	return result, nil
}

// mergeItems folds duplicate product lines and enforces the per-line cap.
func (s *OrderService) mergeItems(in []OrderItemInput) ([]OrderItemInput, error) {
	if len(in) == 0 {
		return nil, apperrors.InvalidInput("at least one item is required")
	}
	var out []OrderItemInput
	index := map[string]int{}
	for _, it := range in {
		if it.Quantity <= 0 {
			return nil, apperrors.InvalidInput("quantity must be at least 1")
		}
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	for _, it := range out {
		if it.Quantity > s.cfg.MaxQtyPerLine {
			return nil, apperrors.InvalidInput(fmt.Sprintf("at most %d units per product", s.cfg.MaxQtyPerLine))
		}
	}
	return out, nil
}

func idempotencyScope(userID string) string {
	if userID == "" {
		return "guest"
	}
	return userID
}

// reserveKey claims an idempotency key. A non-nil result is the replay of
// the order already created with the key.
func (s *OrderService) reserveKey(ctx context.Context, key string) (*CreateOrderResult, error) {
	orderID, reserved, err := s.keys.Reserve(ctx, key, s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}
	if orderID == "" {
		return nil, apperrors.Conflict("an order with this idempotency key is already being processed")
	}

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}
	result := &CreateOrderResult{Order: order, Replayed: true}
	if order.PaymentMethod != domain.PaymentCOD && order.PaymentStatus == domain.PaymentPending && order.Payment.GatewayOrderID != "" {
		result.Payment = &payment.Checkout{
			Gateway:          order.PaymentMethod,
			GatewayOrderID:   order.Payment.GatewayOrderID,
			PaymentSessionID: order.Payment.SessionID,
			Amount:           order.Total,
			Currency:         order.Currency,
		}
	}
	s.logger.InfoContext(ctx, "order replayed from idempotency key",
		slog.String("order_id", order.ID),
	)
	return result, nil
}

func (s *OrderService) placeOrder(ctx context.Context, tx repository.Store, userID string, input *CreateOrderInput, items []OrderItemInput, now time.Time) (*domain.Order, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	locked, err := tx.Products().LockForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	running, err := tx.Campaigns().ListRunning(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	priceProducts(locked, running, now)

	byID := make(map[string]*domain.Product, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}

	order := &domain.Order{
		ID:              uuid.New().String(),
		OrderNumber:     domain.NewOrderNumber(now),
		UserID:          userID,
		Customer:        input.Customer,
		ShippingAddress: input.ShippingAddress.WithDefaults(),
		Items:           make([]domain.OrderItem, 0, len(items)),
		Currency:        s.cfg.Currency,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   domain.PaymentPending,
		StatusHistory:   []domain.StatusEntry{},
		Notes:           input.Notes,
		CreatedAt:       now,
	}
	order.Customer.Email = domain.NormalizeEmail(order.Customer.Email)

	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			return nil, apperrors.Conflict(fmt.Sprintf("product %s is not available", it.ProductID))
		}
		if p.Stock < it.Quantity {
			return nil, insufficientStock(p)
		}
		price := p.EffectivePrice()
		line := domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Slug:      p.Slug,
			SKU:       p.SKU,
			Image:     p.PrimaryImage(),
			Price:     price,
			Quantity:  it.Quantity,
			LineTotal: price * int64(it.Quantity),
		}
		order.Items = append(order.Items, line)
		order.Subtotal += line.LineTotal
	}

	var coupon *domain.Coupon
	freeShipping := false
	if code := domain.NormalizeCouponCode(input.CouponCode); code != "" {
		c, err := tx.Coupons().LockByCode(ctx, code)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidInput("invalid coupon code")
		}
		if err != nil {
			return nil, err
		}
		uses, err := userCouponUses(ctx, tx.Coupons(), c, userID, order.Customer.Email)
		if err != nil {
			return nil, err
		}
		quote, err := quoteCoupon(c, order.Subtotal, uses, now)
		if err != nil {
			return nil, err
		}
		coupon = c
		order.CouponCode = c.Code
		order.Discount = quote.Discount
		freeShipping = quote.FreeShipping
	}

	order.ShippingFee = s.shippingFee(order.Subtotal-order.Discount, freeShipping)
	order.Total = order.Subtotal - order.Discount + order.ShippingFee
	order.SetStatus(domain.OrderPending, "order placed", actorFor(userID), now)

	for _, it := range order.Items {
		if err := tx.Products().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}
	if err := tx.Orders().Create(ctx, order); err != nil {
		return nil, err
	}
	if coupon != nil {
		if err := tx.Coupons().IncrementUsage(ctx, coupon.ID); err != nil {
			return nil, err
		}
		if err := tx.Coupons().RecordUsage(ctx, &domain.CouponUsage{
			ID:        uuid.New().String(),
			CouponID:  coupon.ID,
			UserID:    userID,
			Email:     order.Customer.Email,
			OrderID:   order.ID,
			Discount:  order.Discount,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// shippingFee is free at or above the threshold or with a free-shipping
// coupon, otherwise flat.
func (s *OrderService) shippingFee(afterDiscount int64, freeShipping bool) int64 {
	if freeShipping || afterDiscount >= s.cfg.FreeShippingThreshold {
		return 0
	}
	return s.cfg.FlatShippingFee
}

func (s *OrderService) confirmCOD(ctx context.Context, order *domain.Order) error {
	order.SetStatus(domain.OrderConfirmed, "cash on delivery order confirmed", domain.ActorSystem, s.now())
	if err := s.store.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("confirm cod order: %w", err)
	}
	s.publishOrder(ctx, domain.EventOrderConfirmed, order, domain.OrderPending)
	return nil
}

// openCheckout registers the order with its gateway. On failure the order is
// cancelled and its stock and coupon are released.
func (s *OrderService) openCheckout(ctx context.Context, gateway payment.Gateway, order *domain.Order) (*payment.Checkout, error) {
	checkout, err := gateway.CreateOrder(ctx, order)
	if err == nil {
		order.Payment.GatewayOrderID = checkout.GatewayOrderID
		order.Payment.SessionID = checkout.PaymentSessionID
		order.UpdatedAt = s.now()
		err = s.store.Orders().Update(ctx, order)
		if err == nil {
			return checkout, nil
		}
		err = fmt.Errorf("save gateway order: %w", err)
	}

	s.logger.ErrorContext(ctx, "payment gateway order failed, cancelling order",
		slog.String("order_id", order.ID),
		slog.String("gateway", gateway.Name()),
		slog.String("error", err.Error()),
	)
	cctx := context.WithoutCancel(ctx)
	cancelled, _, cerr := s.cancelInTx(cctx, order.ID, "payment gateway unavailable", domain.ActorSystem, func(o *domain.Order) {
		o.PaymentStatus = domain.PaymentFailed
		o.Payment.FailureReason = err.Error()
	})
	if cerr != nil {
		s.logger.ErrorContext(ctx, "failed to compensate order after gateway failure",
			slog.String("order_id", order.ID),
			slog.String("error", cerr.Error()),
		)
	} else {
		*order = *cancelled
		s.publishOrder(cctx, domain.EventOrderCancelled, order, domain.OrderPending)
	}
	return nil, apperrors.PaymentFailed("could not start the payment, please try again")
}

// cancelInTx cancels an order, restoring stock and coupon usage. mutate runs
// on the locked order before it is saved.
func (s *OrderService) cancelInTx(ctx context.Context, orderID, note, actor string, mutate func(*domain.Order)) (*domain.Order, string, error) {
	var (
		order *domain.Order
		prev  string
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == domain.OrderCancelled {
			order, prev = o, o.Status
			return nil
		}
		if err := s.releaseOrder(ctx, tx, o); err != nil {
			return err
		}
		prev = o.Status
		if mutate != nil {
			mutate(o)
		}
		o.SetStatus(domain.OrderCancelled, note, actor, s.now())
		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("cancel order: %w", err)
	}
	return order, prev, nil
}

// releaseOrder puts the stock of o back and undoes its coupon redemption.
func (s *OrderService) releaseOrder(ctx context.Context, tx repository.Store, o *domain.Order) error {
	if o.StockReleased {
		return nil
	}
	for _, it := range o.Items {
		if err := tx.Products().RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	o.StockReleased = true
	if o.CouponCode == "" {
		return nil
	}
	c, err := tx.Coupons().GetByCode(ctx, o.CouponCode)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.Coupons().ReleaseUsage(ctx, c.ID, o.ID)
}

// reserveOrder takes back the stock and coupon redemption that releaseOrder
// gave up. Coupon limits are not re-checked; the order keeps its discount.
func (s *OrderService) reserveOrder(ctx context.Context, tx repository.Store, o *domain.Order, now time.Time) error {
	if !o.StockReleased {
		return nil
	}
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	locked, err := tx.Products().LockForUpdate(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]*domain.Product, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}
	for _, it := range o.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return apperrors.Conflict(fmt.Sprintf("product %s no longer exists", it.ProductID))
		}
		if p.Stock < it.Quantity {
			return insufficientStock(p)
		}
	}
	for _, it := range o.Items {
		if err := tx.Products().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	o.StockReleased = false

	if o.CouponCode == "" {
		return nil
	}
	c, err := tx.Coupons().LockByCode(ctx, o.CouponCode)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := tx.Coupons().IncrementUsage(ctx, c.ID); err != nil {
		return err
	}
	return tx.Coupons().RecordUsage(ctx, &domain.CouponUsage{
		ID:        uuid.New().String(),
		CouponID:  c.ID,
		UserID:    o.UserID,
		Email:     o.Customer.Email,
		OrderID:   o.ID,
		Discount:  o.Discount,
		CreatedAt: now,
	})
}

// VerifyPayment confirms a gateway checkout callback. Guest orders can be
// verified by anyone holding the order id; account orders only by their
// owner or an admin.
func (s *OrderService) VerifyPayment(ctx context.Context, userID string, isAdmin bool, orderID string, in payment.VerifyInput) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for verification: %w", err)
	}
	if order.UserID != "" && !order.IsOwnedBy(userID) && !isAdmin {
		return nil, apperrors.NotFound("order", orderID)
	}
	if order.PaymentMethod == domain.PaymentCOD {
		return nil, apperrors.InvalidInput("cash on delivery orders need no payment verification")
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return order, nil
	}

	gateway, ok := s.gateways.Get(order.PaymentMethod)
	if !ok {
		return nil, apperrors.ServiceUnavailable(fmt.Sprintf("payment method %s is not available", order.PaymentMethod))
	}
	res, err := gateway.Verify(ctx, order, in)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	switch {
	case res.Paid:
		confirmed, _, err := s.ConfirmPayment(ctx, order.ID, res.PaymentID, res.Signature, domain.ActorGateway)
		return confirmed, err
	case res.Pending:
		return nil, apperrors.Conflict("payment is still pending")
	default:
		if _, _, err := s.FailPayment(ctx, order.ID, res.Reason, domain.ActorGateway); err != nil {
			return nil, err
		}
		return nil, apperrors.PaymentFailed(res.Reason)
	}
}

// ConfirmPayment marks an order paid and moves a pending order to
// confirmed. changed is false when the payment was already recorded. A
// payment for a cancelled order is recorded with a note and the order stays
// cancelled.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID, paymentID, signature, actor string) (*domain.Order, bool, error) {
	var (
		order   *domain.Order
		changed bool
		prev    string
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.PaymentStatus == domain.PaymentPaid {
			return nil
		}

		now := s.now()
		prev = o.Status
		o.PaymentStatus = domain.PaymentPaid
		o.Payment.PaymentID = paymentID
		if signature != "" {
			o.Payment.Signature = signature
		}
		o.Payment.PaidAt = &now
		o.Payment.FailureReason = ""

		switch o.Status {
		case domain.OrderPending:
			o.SetStatus(domain.OrderConfirmed, "payment received", actor, now)
		case domain.OrderCancelled:
			o.AddNote("payment received for a cancelled order, refund required", actor, now)
		default:
			o.AddNote("payment received", actor, now)
		}
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, false, fmt.Errorf("confirm payment: %w", err)
	}
	if !changed {
		return order, false, nil
	}

	publish(ctx, s.producer, s.logger, domain.EventPaymentCaptured, order.ID, aggregateOrder, domain.NewOrderEvent(order))
	if prev == domain.OrderPending && order.Status == domain.OrderConfirmed {
		s.publishOrder(ctx, domain.EventOrderConfirmed, order, prev)
	}
	if order.Status == domain.OrderCancelled {
		s.logger.WarnContext(ctx, "payment captured for cancelled order",
			slog.String("order_id", order.ID),
			slog.String("payment_id", paymentID),
		)
	}

	s.logger.InfoContext(ctx, "payment confirmed",
		slog.String("order_id", order.ID),
		slog.String("payment_id", paymentID),
	)
	return order, true, nil
}

// FailPayment records a failed payment attempt. Paid orders are left
// untouched. The order stays pending so the customer can retry.
func (s *OrderService) FailPayment(ctx context.Context, orderID, reason, actor string) (*domain.Order, bool, error) {
	var (
		order   *domain.Order
		changed bool
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.PaymentStatus == domain.PaymentPaid || (o.PaymentStatus == domain.PaymentFailed && o.Payment.FailureReason == reason) {
			return nil
		}
		if reason == "" {
			reason = "payment failed"
		}
		o.PaymentStatus = domain.PaymentFailed
		o.Payment.FailureReason = reason
		o.AddNote("payment failed: "+reason, actor, s.now())
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, false, fmt.Errorf("record payment failure: %w", err)
	}
	if changed {
		publish(ctx, s.producer, s.logger, domain.EventPaymentFailed, order.ID, aggregateOrder, domain.NewOrderEvent(order))
		s.logger.InfoContext(ctx, "payment failed",
			slog.String("order_id", order.ID),
			slog.String("reason", reason),
		)
	}
	return order, changed, nil
}

// OrderByGatewayOrderID looks an order up by its payment gateway reference.
func (s *OrderService) OrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	order, err := s.store.Orders().GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("get order by gateway id: %w", err)
	}
	return order, nil
}

// OrderByNumber looks an order up by its order number.
func (s *OrderService) OrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	order, err := s.store.Orders().GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return order, nil
}

// ApplyCarrierUpdate records a courier status on the order shipped with awb.
// Mapped statuses only ever move the order forward; changed reports whether
// the order status moved.
func (s *OrderService) ApplyCarrierUpdate(ctx context.Context, awb, carrierStatus string) (*domain.Order, bool, error) {
	found, err := s.store.Orders().GetByAWB(ctx, awb)
	if err != nil {
		return nil, false, fmt.Errorf("get order by awb: %w", err)
	}

	var (
		order   *domain.Order
		prev    string
		changed bool
	)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, found.ID)
		if err != nil {
			return err
		}
		order, prev = o, o.Status
		now := s.now()
		if o.Shipment == nil {
			o.Shipment = &domain.Shipment{AWBCode: awb}
		}
		o.Shipment.CarrierStatus = carrierStatus
		o.Shipment.UpdatedAt = &now

		if next, ok := domain.MapCarrierStatus(carrierStatus); ok && domain.IsForwardTransition(o.Status, next) {
			if next == domain.OrderCancelled && !domain.HasLeftWarehouse(o.Status) {
				if err := s.releaseOrder(ctx, tx, o); err != nil {
					return err
				}
			}
			o.SetStatus(next, "courier status: "+carrierStatus, domain.ActorShiprocket, now)
			changed = true
			if next == domain.OrderDelivered && o.PaymentMethod == domain.PaymentCOD && o.PaymentStatus == domain.PaymentPending {
				o.PaymentStatus = domain.PaymentPaid
				o.Payment.PaidAt = &now
			}
		}
		o.UpdatedAt = now
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, false, fmt.Errorf("apply carrier update: %w", err)
	}

	if changed {
		s.publishOrder(ctx, domain.EventOrderStatusChanged, order, prev)
		s.logger.InfoContext(ctx, "order status advanced by courier",
			slog.String("order_id", order.ID),
			slog.String("from", prev),
			slog.String("to", order.Status),
		)
	}
	return order, changed, nil
}

// MyOrders returns a page of the user's orders, newest first.
func (s *OrderService) MyOrders(ctx context.Context, userID string, page pagination.Params) ([]domain.Order, int, error) {
	orders, total, err := s.store.Orders().List(ctx, domain.OrderFilter{UserID: userID}, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list user orders: %w", err)
	}
	return orders, total, nil
}

// GetOrder returns an order to its owner or an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string, isAdmin bool) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !isAdmin && !order.IsOwnedBy(userID) {
		return nil, apperrors.NotFound("order", orderID)
	}
	return order, nil
}

// TrackOrder returns an order when email matches its customer email.
func (s *OrderService) TrackOrder(ctx context.Context, orderNumber, email string) (*domain.Order, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	order, err := s.store.Orders().GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("track order: %w", err)
	}
	if domain.NormalizeEmail(order.Customer.Email) != domain.NormalizeEmail(email) {
		return nil, apperrors.NotFound("order", orderNumber)
	}
	return order, nil
}

// CancelOrder cancels a pending or confirmed order for its owner or an
// admin, restoring stock and coupon usage and cancelling the courier
// booking.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string, isAdmin bool, reason string) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for cancel: %w", err)
	}
	if !isAdmin && !order.IsOwnedBy(userID) {
		return nil, apperrors.NotFound("order", orderID)
	}
	if !domain.IsCancellableByCustomer(order.Status) {
		return nil, apperrors.Conflict(fmt.Sprintf("order is %s and can no longer be cancelled", order.Status))
	}

	actor := domain.ActorCustomer
	if isAdmin && !order.IsOwnedBy(userID) {
		actor = domain.ActorAdmin
	}
	note := "cancelled by customer"
	if reason != "" {
		note = "cancelled: " + reason
	}

	var prev string
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !domain.IsCancellableByCustomer(o.Status) {
			return apperrors.Conflict(fmt.Sprintf("order is %s and can no longer be cancelled", o.Status))
		}
		if err := s.releaseOrder(ctx, tx, o); err != nil {
			return err
		}
		prev = o.Status
		o.SetStatus(domain.OrderCancelled, note, actor, s.now())
		order = o
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	s.cancelShipment(ctx, order)
	s.publishOrder(ctx, domain.EventOrderStatusChanged, order, prev)

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", order.ID),
		slog.String("actor", actor),
	)
	return order, nil
}

// ListOrders returns a filtered page of all orders for the admin.
func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter, page pagination.Params) ([]domain.Order, int, error) {
	if filter.Status != "" && !domain.IsValidStatus(filter.Status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", filter.Status))
	}
	if filter.PaymentStatus != "" && !domain.IsValidPaymentStatus(filter.PaymentStatus) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid payment_status %q", filter.PaymentStatus))
	}
	orders, total, err := s.store.Orders().List(ctx, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus sets any known status on an order. Moving into cancelled
// restores stock and coupon usage; delivering a cash on delivery order marks
// it paid.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status, note string) (*domain.Order, error) {
	if !domain.IsValidStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", status))
	}

	var (
		order   *domain.Order
		prev    string
		changed bool
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		order, prev = o, o.Status
		if o.Status == status {
			return nil
		}
		now := s.now()
		switch {
		case status == domain.OrderCancelled:
			if err := s.releaseOrder(ctx, tx, o); err != nil {
				return err
			}
		case o.Status == domain.OrderCancelled:
			if err := s.reserveOrder(ctx, tx, o, now); err != nil {
				return err
			}
		}
		if status == domain.OrderDelivered && o.PaymentMethod == domain.PaymentCOD && o.PaymentStatus == domain.PaymentPending {
			o.PaymentStatus = domain.PaymentPaid
			o.Payment.PaidAt = &now
		}
		o.SetStatus(status, note, domain.ActorAdmin, now)
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !changed {
		return order, nil
	}

	if status == domain.OrderCancelled {
		s.cancelShipment(ctx, order)
	}
	s.publishOrder(ctx, domain.EventOrderStatusChanged, order, prev)

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", order.ID),
		slog.String("from", prev),
		slog.String("to", status),
	)
	return order, nil
}

func (s *OrderService) cancelShipment(ctx context.Context, order *domain.Order) {
	if s.shipping == nil || order.Shipment == nil || order.Shipment.ShiprocketOrderID == 0 {
		return
	}
	if err := s.shipping.CancelShipment(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to cancel shipment",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) publishOrder(ctx context.Context, eventType string, order *domain.Order, prev string) {
	evt := domain.NewOrderEvent(order)
	evt.PrevStatus = prev
	if n := len(order.StatusHistory); n > 0 {
		evt.Note = order.StatusHistory[n-1].Note
	}
	publish(ctx, s.producer, s.logger, eventType, order.ID, aggregateOrder, evt)
}

func actorFor(userID string) string {
	if userID == "" {
		return domain.ActorSystem
	}
	return domain.ActorCustomer
}
