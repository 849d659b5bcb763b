package domain

import "strings"

// carrierStatuses maps Shiprocket's current_status values to order statuses.
var carrierStatuses = map[string]string{
	"NEW":                        OrderProcessing,
	"AWB ASSIGNED":               OrderProcessing,
	"PICKUP SCHEDULED":           OrderProcessing,
	"PICKUP GENERATED":           OrderProcessing,
	"GENERATED":                  OrderProcessing,
	"OUT FOR PICKUP":             OrderProcessing,
	"PICKED UP":                  OrderShipped,
	"SHIPPED":                    OrderShipped,
	"IN TRANSIT":                 OrderShipped,
	"REACHED AT DESTINATION HUB": OrderShipped,
	"OUT FOR DELIVERY":           OrderOutForDelivery,
	"DELIVERED":                  OrderDelivered,
	"CANCELED":                   OrderCancelled,
	"CANCELLED":                  OrderCancelled,
}

// MapCarrierStatus translates a carrier status to an order status. Every RTO
// status maps to returned. ok is false for statuses with no order meaning.
func MapCarrierStatus(carrier string) (status string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(carrier))
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	if strings.HasPrefix(s, "RTO") {
		return OrderReturned, true
	}
	status, ok = carrierStatuses[s]
	return status, ok
}
