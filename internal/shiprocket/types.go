package shiprocket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// OrderItem is one line of an adhoc order.
type OrderItem struct {
	Name         string      `json:"name"`
	SKU          string      `json:"sku"`
	Units        int         `json:"units"`
	SellingPrice json.Number `json:"selling_price"`
	Discount     json.Number `json:"discount,omitempty"`
}

// CreateOrderRequest is the adhoc order payload. Amounts are rupees.
type CreateOrderRequest struct {
	OrderID           string      `json:"order_id"`
	OrderDate         string      `json:"order_date"`
	PickupLocation    string      `json:"pickup_location"`
	BillingFirstName  string      `json:"billing_customer_name"`
	BillingLastName   string      `json:"billing_last_name"`
	BillingAddress    string      `json:"billing_address"`
	BillingAddress2   string      `json:"billing_address_2,omitempty"`
	BillingCity       string      `json:"billing_city"`
	BillingPincode    string      `json:"billing_pincode"`
	BillingState      string      `json:"billing_state"`
	BillingCountry    string      `json:"billing_country"`
	BillingEmail      string      `json:"billing_email"`
	BillingPhone      string      `json:"billing_phone"`
	ShippingIsBilling bool        `json:"shipping_is_billing"`
	OrderItems        []OrderItem `json:"order_items"`
	PaymentMethod     string      `json:"payment_method"`
	ShippingCharges   json.Number `json:"shipping_charges"`
	TotalDiscount     json.Number `json:"total_discount"`
	SubTotal          json.Number `json:"sub_total"`
	Length            int         `json:"length"`
	Breadth           int         `json:"breadth"`
	Height            int         `json:"height"`
	Weight            float64     `json:"weight"`
}

// Payment method values of CreateOrderRequest.
const (
	PaymentMethodCOD     = "COD"
	PaymentMethodPrepaid = "Prepaid"
)

// CreateOrderResponse carries the ids Shiprocket assigned.
type CreateOrderResponse struct {
	OrderID    int64  `json:"order_id"`
	ShipmentID int64  `json:"shipment_id"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
}

// ServiceabilityQuery describes a courier rate lookup.
type ServiceabilityQuery struct {
	PickupPincode   string
	DeliveryPincode string
	WeightKg        float64
	COD             bool
	DeclaredValue   float64
}

// Days decodes counts that Shiprocket sends either as numbers or strings.
type Days int

// UnmarshalJSON accepts 3, "3" and "".
func (d *Days) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*d = 0
		return nil
	}
	*d = Days(n)
	return nil
}

// Courier is one serviceable courier company with its quoted rate.
type Courier struct {
	ID                    int     `json:"courier_company_id"`
	Name                  string  `json:"courier_name"`
	Rate                  float64 `json:"rate"`
	EstimatedDeliveryDays Days    `json:"estimated_delivery_days"`
	ETD                   string  `json:"etd,omitempty"`
	COD                   int     `json:"cod"`
	Rating                float64 `json:"rating,omitempty"`
}

// SortCouriers orders couriers by rate; ties go to the faster courier, then
// the lower id so the order is stable.
func SortCouriers(couriers []Courier) {
	sort.SliceStable(couriers, func(i, j int) bool {
		a, b := couriers[i], couriers[j]
		if a.Rate != b.Rate {
			return a.Rate < b.Rate
		}
		if a.EstimatedDeliveryDays != b.EstimatedDeliveryDays {
			return a.EstimatedDeliveryDays < b.EstimatedDeliveryDays
		}
		return a.ID < b.ID
	})
}

// CheapestCourier picks the first courier in SortCouriers order.
func CheapestCourier(couriers []Courier) (Courier, bool) {
	if len(couriers) == 0 {
		return Courier{}, false
	}
	sorted := make([]Courier, len(couriers))
	copy(sorted, couriers)
	SortCouriers(sorted)
	return sorted[0], true
}

type serviceabilityResponse struct {
	Status int `json:"status"`
	Data   struct {
		AvailableCourierCompanies []Courier `json:"available_courier_companies"`
	} `json:"data"`
}

// AWBAssignment is the result of a successful AWB assignment.
type AWBAssignment struct {
	AWBCode     string
	CourierID   int
	CourierName string
}

type awbResponse struct {
	AWBAssignStatus int `json:"awb_assign_status"`
	Response        struct {
		Data struct {
			AWBCode          string `json:"awb_code"`
			CourierCompanyID int    `json:"courier_company_id"`
			CourierName      string `json:"courier_name"`
			AWBAssignError   string `json:"awb_assign_error"`
		} `json:"data"`
	} `json:"response"`
}

type pickupResponse struct {
	PickupStatus int `json:"pickup_status"`
	Response     struct {
		PickupScheduledDate string `json:"pickup_scheduled_date"`
		Data                string `json:"data"`
	} `json:"response"`
}

// Activity is one tracking scan.
type Activity struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
	Location string `json:"location"`
}

// Tracking summarises the tracking state of an AWB.
type Tracking struct {
	AWBCode       string     `json:"awb_code"`
	CurrentStatus string     `json:"current_status"`
	CourierName   string     `json:"courier_name,omitempty"`
	Origin        string     `json:"origin,omitempty"`
	Destination   string     `json:"destination,omitempty"`
	ETD           string     `json:"etd,omitempty"`
	TrackURL      string     `json:"track_url,omitempty"`
	TrackStatus   int        `json:"track_status"`
	Activities    []Activity `json:"activities"`
}

type trackResponse struct {
	TrackingData struct {
		TrackStatus   int    `json:"track_status"`
		ShipmentTrack []struct {
			CurrentStatus string `json:"current_status"`
			CourierName   string `json:"courier_name"`
			Origin        string `json:"origin"`
			Destination   string `json:"destination"`
		} `json:"shipment_track"`
		ShipmentTrackActivities []Activity `json:"shipment_track_activities"`
		TrackURL                string     `json:"track_url"`
		ETD                     string     `json:"etd"`
		Error                   string     `json:"error"`
	} `json:"tracking_data"`
}

// AWBCode is an air waybill number. Shiprocket sends numeric AWBs as JSON
// numbers and alphanumeric ones as strings.
type AWBCode string

// UnmarshalJSON accepts "SF123", 19041234567890 and null.
func (a *AWBCode) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AWBCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = AWBCode(n.String())
	return nil
}

// WebhookPayload is the body of a Shiprocket tracking webhook.
type WebhookPayload struct {
	AWB              AWBCode `json:"awb"`
	CurrentStatus    string  `json:"current_status"`
	ShipmentStatus   string  `json:"shipment_status"`
	OrderID          string  `json:"order_id"`
	CurrentTimestamp string  `json:"current_timestamp"`
	ETD              string  `json:"etd"`
	Courier          string  `json:"courier_name"`
}
