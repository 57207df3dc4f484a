// Package risk computes order sizes from account state and venue limits.
package risk

// Sizer converts a fraction of available balance into a base-currency
// amount, floored at the venue minimum order size.
type Sizer struct {
	// PositionSizePercent is the share of available balance committed per
	// trade, expressed in percent (5 means 5%).
	PositionSizePercent float64
}

// Size returns the order amount for the given balance and price, or 0 when
// the computed amount falls below the venue minimum. A zero return is a
// skip-entry decision, not an error.
func (s Sizer) Size(availableBalance, currentPrice, minAmount float64) float64 {
	if availableBalance <= 0 || currentPrice <= 0 {
		return 0
	}
	value := availableBalance * (s.PositionSizePercent / 100)
	amount := value / currentPrice
	if amount < minAmount {
		return 0
	}
	return amount
}
