package domain

// Event types published on the bus.
const (
	EventOrderCreated       = "order.created"
	EventOrderConfirmed     = "order.confirmed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderShipped       = "order.shipped"
	EventOrderCancelled     = "order.cancelled"
	EventPaymentCaptured    = "payment.captured"
	EventPaymentFailed      = "payment.failed"
	EventProductUpdated     = "product.updated"
	EventReviewCreated      = "review.created"
)

// OrderEvent is the payload of every order.* event.
type OrderEvent struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	UserID        string `json:"user_id,omitempty"`
	Status        string `json:"status"`
	PrevStatus    string `json:"prev_status,omitempty"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	Total         int64  `json:"total"`
	Note          string `json:"note,omitempty"`
	AWBCode       string `json:"awb_code,omitempty"`
	CourierName   string `json:"courier_name,omitempty"`
}

// NewOrderEvent snapshots o into an event payload.
func NewOrderEvent(o *Order) OrderEvent {
	e := OrderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
	}
	if o.Shipment != nil {
		e.AWBCode = o.Shipment.AWBCode
		e.CourierName = o.Shipment.CourierName
	}
	return e
}

// ProductEvent is the payload of product.updated.
type ProductEvent struct {
	ProductID string `json:"product_id"`
	Slug      string `json:"slug"`
	Action    string `json:"action"`
}

// ReviewEvent is the payload of review.created.
type ReviewEvent struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
}
