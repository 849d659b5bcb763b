package domain

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Order statuses.
const (
	OrderPending        = "pending"
	OrderConfirmed      = "confirmed"
	OrderProcessing     = "processing"
	OrderShipped        = "shipped"
	OrderOutForDelivery = "out_for_delivery"
	OrderDelivered      = "delivered"
	OrderCancelled      = "cancelled"
	OrderReturned       = "returned"
)

// Payment methods.
const (
	PaymentCOD      = "cod"
	PaymentRazorpay = "razorpay"
	PaymentCashfree = "cashfree"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Shipment statuses recorded by the booking saga.
const (
	ShipmentCreated     = "created"
	ShipmentAWBAssigned = "awb_assigned"
	ShipmentPickup      = "pickup_scheduled"
	ShipmentFailed      = "failed"
	ShipmentCancelled   = "cancelled"
)

// ValidStatuses returns all order statuses in lifecycle order.
func ValidStatuses() []string {
	return []string{
		OrderPending,
		OrderConfirmed,
		OrderProcessing,
		OrderShipped,
		OrderOutForDelivery,
		OrderDelivered,
		OrderCancelled,
		OrderReturned,
	}
}

// IsValidStatus checks whether status is a known order status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// IsValidPaymentMethod checks whether m is a supported payment method.
func IsValidPaymentMethod(m string) bool {
	return m == PaymentCOD || m == PaymentRazorpay || m == PaymentCashfree
}

// IsValidPaymentStatus checks whether s is a payment status.
func IsValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// statusRank orders statuses for webhook-driven updates. Terminal statuses
// share the top rank so nothing moves an order out of them.
var statusRank = map[string]int{
	OrderPending:        0,
	OrderConfirmed:      1,
	OrderProcessing:     2,
	OrderShipped:        3,
	OrderOutForDelivery: 4,
	OrderDelivered:      5,
	OrderReturned:       6,
	OrderCancelled:      6,
}

// IsForwardTransition reports whether moving from -> to never goes backwards.
// Carrier webhooks arrive out of order; only forward moves are applied.
// Delivered orders may only become returned.
func IsForwardTransition(from, to string) bool {
	rf, okf := statusRank[from]
	rt, okt := statusRank[to]
	if !okf || !okt || from == to {
		return false
	}
	switch from {
	case OrderCancelled, OrderReturned:
		return false
	case OrderDelivered:
		return to == OrderReturned
	}
	return rt > rf
}

// HasLeftWarehouse reports whether the parcel of an order in status has been
// handed to the courier.
func HasLeftWarehouse(status string) bool {
	switch status {
	case OrderShipped, OrderOutForDelivery, OrderDelivered, OrderReturned:
		return true
	}
	return false
}

// IsCancellableByCustomer reports whether the owner may still cancel.
func IsCancellableByCustomer(status string) bool {
	return status == OrderPending || status == OrderConfirmed
}

// Customer is the contact snapshot stored on an order.
type Customer struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,in_phone"`
}

// OrderItem is an immutable line snapshot.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	SKU       string `json:"sku,omitempty"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// Payment holds gateway references for online orders.
type Payment struct {
	GatewayOrderID string     `json:"gateway_order_id,omitempty"`
	PaymentID      string     `json:"payment_id,omitempty"`
	Signature      string     `json:"signature,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
}

// Shipment tracks courier booking progress.
type Shipment struct {
	ShiprocketOrderID int64      `json:"shiprocket_order_id,omitempty"`
	ShipmentID        int64      `json:"shipment_id,omitempty"`
	CourierID         int        `json:"courier_id,omitempty"`
	CourierName       string     `json:"courier_name,omitempty"`
	AWBCode           string     `json:"awb_code,omitempty"`
	Rate              float64    `json:"rate,omitempty"`
	PickupScheduled   bool       `json:"pickup_scheduled"`
	PickupDate        string     `json:"pickup_date,omitempty"`
	Status            string     `json:"status,omitempty"`
	CarrierStatus     string     `json:"carrier_status,omitempty"`
	TrackingURL       string     `json:"tracking_url,omitempty"`
	Error             string     `json:"error,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// StatusEntry is one status_history record.
type StatusEntry struct {
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// Status history actors.
const (
	ActorSystem     = "system"
	ActorCustomer   = "customer"
	ActorAdmin      = "admin"
	ActorGateway    = "payment_gateway"
	ActorShiprocket = "shiprocket"
)

// Order is a placed order. Money fields are in paise.
type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	UserID          string        `json:"user_id,omitempty"`
	Customer        Customer      `json:"customer"`
	ShippingAddress Address       `json:"shipping_address"`
	Items           []OrderItem   `json:"items"`
	Subtotal        int64         `json:"subtotal"`
	Discount        int64         `json:"discount"`
	ShippingFee     int64         `json:"shipping_fee"`
	Total           int64         `json:"total"`
	Currency        string        `json:"currency"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	PaymentMethod   string        `json:"payment_method"`
	PaymentStatus   string        `json:"payment_status"`
	Payment         Payment       `json:"payment"`
	Status          string        `json:"status"`
	StatusHistory   []StatusEntry `json:"status_history"`
	Shipment        *Shipment     `json:"shipment,omitempty"`
	StockReleased   bool          `json:"stock_released"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SetStatus changes the status and appends a history entry.
func (o *Order) SetStatus(status, note, actor string, at time.Time) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusEntry{Status: status, Note: note, Actor: actor, At: at.UTC()})
	o.UpdatedAt = at
}

// AddNote appends a history entry without changing the status.
func (o *Order) AddNote(note, actor string, at time.Time) {
	o.StatusHistory = append(o.StatusHistory, StatusEntry{Status: o.Status, Note: note, Actor: actor, At: at.UTC()})
	o.UpdatedAt = at
}

// ItemCount is the total quantity across lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// IsOwnedBy reports whether userID placed the order.
func (o *Order) IsOwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// OrderFilter narrows the admin order list.
type OrderFilter struct {
	Status        string
	PaymentStatus string
	Search        string
	From          *time.Time
	To            *time.Time
	UserID        string
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber returns "GS" + yyMMdd + 6 random upper-case alphanumerics.
func NewOrderNumber(now time.Time) string {
	buf := make([]byte, 6)
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		buf[i] = orderNumberAlphabet[n.Int64()]
	}
	return "GS" + now.UTC().Format("060102") + string(buf)
}
