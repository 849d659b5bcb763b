package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/repository"
	"github.com/utafrali/glowskin/internal/shiprocket"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httpclient"
	"github.com/utafrali/glowskin/pkg/money"
)

const trackingURLPrefix = "https://shiprocket.co/tracking/"

var pincodeRegexp = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// Courier is the Shiprocket API used by the booking saga.
type Courier interface {
	CreateOrder(ctx context.Context, req *shiprocket.CreateOrderRequest) (*shiprocket.CreateOrderResponse, error)
	Serviceability(ctx context.Context, q shiprocket.ServiceabilityQuery) ([]shiprocket.Courier, error)
	AssignAWB(ctx context.Context, shipmentID int64, courierID int) (*shiprocket.AWBAssignment, error)
	GeneratePickup(ctx context.Context, shipmentID int64) (string, error)
	Track(ctx context.Context, awb string) (*shiprocket.Tracking, error)
	CancelOrder(ctx context.Context, ids ...int64) error
	PickupPincode() string
}

// errNotShippable marks orders the saga must not book yet.
var errNotShippable = errors.New("order is not ready to ship")

// ShippingService books couriers for confirmed orders.
type ShippingService struct {
	store    repository.Store
	courier  Courier
	producer EventPublisher
	cfg      config.ShiprocketConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewShippingService creates a new shipping service.
func NewShippingService(
	store repository.Store,
	courier Courier,
	producer EventPublisher,
	cfg config.ShiprocketConfig,
	logger *slog.Logger,
) *ShippingService {
	return &ShippingService{
		store:    store,
		courier:  courier,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
		now:      utcNow,
	}
}

// BookShipment runs the booking saga for a confirmed order: create the
// Shiprocket order, pick the cheapest serviceable courier, assign the AWB and
// schedule pickup. Progress is saved after every step, so a retry resumes
// where the previous run stopped. Orders that are not ready, already booked
// or whose booking failed permanently return nil; only transient failures
// return an error so the caller can retry.
func (s *ShippingService) BookShipment(ctx context.Context, orderID string) error {
	_, err := s.book(ctx, orderID)
	if errors.Is(err, errNotShippable) {
		shipmentOutcomes.WithLabelValues(shipmentSkipped).Inc()
		s.logger.InfoContext(ctx, "shipment booking skipped",
			slog.String("order_id", orderID),
			slog.String("reason", err.Error()),
		)
		return nil
	}
	return err
}

// Ship books a shipment on admin request and returns the updated order.
func (s *ShippingService) Ship(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.book(ctx, orderID)
	if errors.Is(err, errNotShippable) {
		return nil, apperrors.Conflict(err.Error())
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *ShippingService) book(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for shipment: %w", err)
	}
	if err := shippable(order); err != nil {
		return order, err
	}
	if order.Shipment != nil && order.Shipment.AWBCode != "" {
		return order, nil
	}

	sh := &domain.Shipment{}
	if order.Shipment != nil && order.Shipment.Status != domain.ShipmentFailed && order.Shipment.Status != domain.ShipmentCancelled {
		cp := *order.Shipment
		sh = &cp
	}

	weightKg, err := s.weightKg(ctx, order)
	if err != nil {
		return nil, err
	}

	if sh.ShipmentID == 0 {
		resp, err := s.courier.CreateOrder(ctx, s.orderRequest(order, weightKg))
		if err != nil {
			if httpclient.IsClientError(err) {
				return s.fail(ctx, order, sh, fmt.Sprintf("create shipment: %v", err), false)
			}
			return nil, fmt.Errorf("create shipment: %w", err)
		}
		sh.ShiprocketOrderID = resp.OrderID
		sh.ShipmentID = resp.ShipmentID
		sh.Status = domain.ShipmentCreated
		sh.Error = ""
		if order, err = s.saveBooking(ctx, order.ID, sh, nil); err != nil {
			return nil, s.abandon(ctx, orderID, sh, err)
		}
	}

	couriers, err := s.courier.Serviceability(ctx, shiprocket.ServiceabilityQuery{
		PickupPincode:   s.courier.PickupPincode(),
		DeliveryPincode: order.ShippingAddress.Pincode,
		WeightKg:        weightKg,
		COD:             order.PaymentMethod == domain.PaymentCOD,
		DeclaredValue:   money.Rupees(order.Total).InexactFloat64(),
	})
	if err != nil {
		return nil, fmt.Errorf("list couriers: %w", err)
	}
	best, ok := shiprocket.CheapestCourier(couriers)
	if !ok {
		return s.fail(ctx, order, sh, "no courier serviceable for pincode "+order.ShippingAddress.Pincode, true)
	}

	awb, err := s.courier.AssignAWB(ctx, sh.ShipmentID, best.ID)
	if err != nil {
		return s.fail(ctx, order, sh, fmt.Sprintf("assign awb: %v", err), true)
	}
	sh.CourierID = best.ID
	sh.CourierName = best.Name
	if awb.CourierName != "" {
		sh.CourierName = awb.CourierName
	}
	sh.AWBCode = awb.AWBCode
	sh.Rate = best.Rate
	sh.Status = domain.ShipmentAWBAssigned
	sh.TrackingURL = trackingURLPrefix + awb.AWBCode

	outcome := shipmentBooked
	var pickupNote string
	date, err := s.courier.GeneratePickup(ctx, sh.ShipmentID)
	if err != nil {
		outcome = shipmentPickupFailed
		sh.Error = fmt.Sprintf("pickup: %v", err)
		pickupNote = "pickup scheduling failed: " + err.Error()
		s.logger.WarnContext(ctx, "pickup scheduling failed",
			slog.String("order_id", order.ID),
			slog.String("awb", sh.AWBCode),
			slog.String("error", err.Error()),
		)
	} else {
		sh.PickupScheduled = true
		sh.PickupDate = date
		sh.Status = domain.ShipmentPickup
		sh.Error = ""
	}

	var prev string
	order, err = s.saveBooking(ctx, order.ID, sh, func(o *domain.Order) {
		now := s.now()
		prev = o.Status
		if domain.IsForwardTransition(o.Status, domain.OrderProcessing) {
			o.SetStatus(domain.OrderProcessing, fmt.Sprintf("shipment booked with %s, AWB %s", sh.CourierName, sh.AWBCode), domain.ActorShiprocket, now)
		}
		if pickupNote != "" {
			o.AddNote(pickupNote, domain.ActorShiprocket, now)
		}
	})
	if err != nil {
		return nil, s.abandon(ctx, orderID, sh, err)
	}

	shipmentOutcomes.WithLabelValues(outcome).Inc()
	evt := domain.NewOrderEvent(order)
	evt.PrevStatus = prev
	publish(ctx, s.producer, s.logger, domain.EventOrderShipped, order.ID, aggregateOrder, evt)
	if order.Status != prev {
		publish(ctx, s.producer, s.logger, domain.EventOrderStatusChanged, order.ID, aggregateOrder, evt)
	}

	s.logger.InfoContext(ctx, "shipment booked",
		slog.String("order_id", order.ID),
		slog.String("awb", sh.AWBCode),
		slog.String("courier", sh.CourierName),
	)
	return order, nil
}

func shippable(o *domain.Order) error {
	switch o.Status {
	case domain.OrderConfirmed, domain.OrderProcessing:
	default:
		return fmt.Errorf("%w: status is %s", errNotShippable, o.Status)
	}
	if o.PaymentMethod != domain.PaymentCOD && o.PaymentStatus != domain.PaymentPaid {
		return fmt.Errorf("%w: payment is %s", errNotShippable, o.PaymentStatus)
	}
	return nil
}

// fail records a permanent booking failure. When compensate is set the
// Shiprocket order is cancelled first.
func (s *ShippingService) fail(ctx context.Context, order *domain.Order, sh *domain.Shipment, reason string, compensate bool) (*domain.Order, error) {
	if compensate && sh.ShiprocketOrderID != 0 {
		if err := s.courier.CancelOrder(ctx, sh.ShiprocketOrderID); err != nil {
			s.logger.ErrorContext(ctx, "failed to cancel shiprocket order after booking failure",
				slog.String("order_id", order.ID),
				slog.Int64("shiprocket_order_id", sh.ShiprocketOrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	sh.Status = domain.ShipmentFailed
	sh.Error = reason

	updated, err := s.saveShipment(ctx, order.ID, sh, func(o *domain.Order) {
		o.AddNote("shipment booking failed: "+reason, domain.ActorShiprocket, s.now())
	})
	if err != nil {
		return nil, err
	}

	shipmentOutcomes.WithLabelValues(shipmentFailed).Inc()
	s.logger.ErrorContext(ctx, "shipment booking failed",
		slog.String("order_id", order.ID),
		slog.String("reason", reason),
	)
	return updated, nil
}

// abandon cancels the Shiprocket order of a booking whose order stopped
// being shippable while the saga ran. Other errors pass through.
func (s *ShippingService) abandon(ctx context.Context, orderID string, sh *domain.Shipment, err error) error {
	if !errors.Is(err, errNotShippable) || sh.ShiprocketOrderID == 0 {
		return err
	}
	if cerr := s.courier.CancelOrder(context.WithoutCancel(ctx), sh.ShiprocketOrderID); cerr != nil {
		s.logger.ErrorContext(ctx, "failed to cancel shiprocket order of abandoned booking",
			slog.String("order_id", orderID),
			slog.Int64("shiprocket_order_id", sh.ShiprocketOrderID),
			slog.String("error", cerr.Error()),
		)
		return err
	}
	s.logger.InfoContext(ctx, "shipment booking abandoned",
		slog.String("order_id", orderID),
		slog.Int64("shiprocket_order_id", sh.ShiprocketOrderID),
		slog.String("reason", err.Error()),
	)
	return err
}

// saveBooking stores a saga step. The locked order must still be shippable.
func (s *ShippingService) saveBooking(ctx context.Context, orderID string, sh *domain.Shipment, mutate func(*domain.Order)) (*domain.Order, error) {
	return s.storeShipment(ctx, orderID, sh, shippable, mutate)
}

// saveShipment stores sh on the locked order. mutate may add history.
func (s *ShippingService) saveShipment(ctx context.Context, orderID string, sh *domain.Shipment, mutate func(*domain.Order)) (*domain.Order, error) {
	return s.storeShipment(ctx, orderID, sh, nil, mutate)
}

func (s *ShippingService) storeShipment(
	ctx context.Context,
	orderID string,
	sh *domain.Shipment,
	guard func(*domain.Order) error,
	mutate func(*domain.Order),
) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return err
			}
		}
		now := s.now()
		cp := *sh
		cp.UpdatedAt = &now
		o.Shipment = &cp
		if mutate != nil {
			mutate(o)
		}
		o.UpdatedAt = now
		order = o
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("save shipment: %w", err)
	}
	return order, nil
}

func (s *ShippingService) weightKg(ctx context.Context, order *domain.Order) (float64, error) {
	ids := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.store.Products().GetByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load product weights: %w", err)
	}
	grams := make(map[string]int, len(products))
	for _, p := range products {
		grams[p.ID] = p.WeightGrams
	}

	total := 0
	for _, it := range order.Items {
		w := grams[it.ProductID]
		if w <= 0 {
			w = s.cfg.DefaultWeight
		}
		total += w * it.Quantity
	}
	return float64(total) / 1000, nil
}

func (s *ShippingService) orderRequest(o *domain.Order, weightKg float64) *shiprocket.CreateOrderRequest {
	first, last := shiprocket.SplitName(o.ShippingAddress.FullName)
	method := shiprocket.PaymentMethodPrepaid
	if o.PaymentMethod == domain.PaymentCOD {
		method = shiprocket.PaymentMethodCOD
	}
	items := make([]shiprocket.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		sku := it.SKU
		if sku == "" {
			sku = it.ProductID
		}
		items = append(items, shiprocket.OrderItem{
			Name:         it.Name,
			SKU:          sku,
			Units:        it.Quantity,
			SellingPrice: money.Number(it.Price),
		})
	}
	return &shiprocket.CreateOrderRequest{
		OrderID:           o.OrderNumber,
		OrderDate:         shiprocket.OrderDate(o.CreatedAt),
		PickupLocation:    s.cfg.PickupLocation,
		BillingFirstName:  first,
		BillingLastName:   last,
		BillingAddress:    o.ShippingAddress.Line1,
		BillingAddress2:   o.ShippingAddress.Line2,
		BillingCity:       o.ShippingAddress.City,
		BillingPincode:    o.ShippingAddress.Pincode,
		BillingState:      o.ShippingAddress.State,
		BillingCountry:    o.ShippingAddress.Country,
		BillingEmail:      o.Customer.Email,
		BillingPhone:      o.ShippingAddress.Phone,
		ShippingIsBilling: true,
		OrderItems:        items,
		PaymentMethod:     method,
		ShippingCharges:   money.Number(o.ShippingFee),
		TotalDiscount:     money.Number(o.Discount),
		SubTotal:          money.Number(o.Subtotal),
		Length:            s.cfg.PackageLength,
		Breadth:           s.cfg.PackageBreadth,
		Height:            s.cfg.PackageHeight,
		Weight:            weightKg,
	}
}

// SchedulePickup retries pickup scheduling for an order with an AWB.
func (s *ShippingService) SchedulePickup(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for pickup: %w", err)
	}
	if order.Shipment == nil || order.Shipment.AWBCode == "" {
		return nil, apperrors.Conflict("order has no AWB yet")
	}
	if order.Shipment.PickupScheduled {
		return order, nil
	}

	date, err := s.courier.GeneratePickup(ctx, order.Shipment.ShipmentID)
	if err != nil {
		return nil, fmt.Errorf("schedule pickup: %w", err)
	}
	sh := *order.Shipment
	sh.PickupScheduled = true
	sh.PickupDate = date
	sh.Status = domain.ShipmentPickup
	sh.Error = ""
	order, err = s.saveShipment(ctx, orderID, &sh, func(o *domain.Order) {
		o.AddNote("pickup scheduled for "+date, domain.ActorAdmin, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "pickup scheduled",
		slog.String("order_id", orderID),
		slog.String("pickup_date", date),
	)
	return order, nil
}

// CancelShipment cancels the Shiprocket order behind order, if any.
func (s *ShippingService) CancelShipment(ctx context.Context, order *domain.Order) error {
	sh := order.Shipment
	if sh == nil || sh.ShiprocketOrderID == 0 || sh.Status == domain.ShipmentCancelled || sh.Status == domain.ShipmentFailed {
		return nil
	}
	if err := s.courier.CancelOrder(ctx, sh.ShiprocketOrderID); err != nil {
		return fmt.Errorf("cancel shipment: %w", err)
	}
	cp := *sh
	cp.Status = domain.ShipmentCancelled
	if _, err := s.saveShipment(ctx, order.ID, &cp, nil); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "shipment cancelled",
		slog.String("order_id", order.ID),
		slog.Int64("shiprocket_order_id", sh.ShiprocketOrderID),
	)
	return nil
}

// Track returns courier tracking for an AWB.
func (s *ShippingService) Track(ctx context.Context, awb string) (*shiprocket.Tracking, error) {
	if awb == "" {
		return nil, apperrors.InvalidInput("awb is required")
	}
	t, err := s.courier.Track(ctx, awb)
	if err != nil {
		return nil, fmt.Errorf("track shipment: %w", err)
	}
	return t, nil
}

// Serviceability lists couriers delivering to pincode, cheapest first.
// weightGrams defaults to the configured parcel weight.
func (s *ShippingService) Serviceability(ctx context.Context, pincode string, weightGrams int, cod bool) ([]shiprocket.Courier, error) {
	if !pincodeRegexp.MatchString(pincode) {
		return nil, apperrors.InvalidInput("pincode must be 6 digits")
	}
	if weightGrams <= 0 {
		weightGrams = s.cfg.DefaultWeight
	}
	couriers, err := s.courier.Serviceability(ctx, shiprocket.ServiceabilityQuery{
		PickupPincode:   s.courier.PickupPincode(),
		DeliveryPincode: pincode,
		WeightKg:        float64(weightGrams) / 1000,
		COD:             cod,
	})
	if err != nil {
		return nil, fmt.Errorf("check serviceability: %w", err)
	}
	shiprocket.SortCouriers(couriers)
	return couriers, nil
}
