// Package money converts between stored paise and the rupee amounts that
// payment and courier APIs expect.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rupees converts paise to a two-decimal rupee amount.
func Rupees(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// Number renders paise as a JSON number in rupees, e.g. 49900 -> 499.00.
func Number(paise int64) json.Number {
	return json.Number(Rupees(paise).StringFixed(2))
}

// ParsePaise converts a rupee amount such as "499.5" into paise, rounding
// half away from zero.
func ParsePaise(rupees string) (int64, error) {
	d, err := decimal.NewFromString(rupees)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", rupees, err)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// FromFloat converts a provider float such as a courier rate into paise.
func FromFloat(rupees float64) int64 {
	return decimal.NewFromFloat(rupees).Shift(2).Round(0).IntPart()
}

// Format renders paise for messages, e.g. "₹499.00".
func Format(paise int64) string {
	return "₹" + Rupees(paise).StringFixed(2)
}
