package instrument

import "math"

// TickIncrement returns the minimum price increment for a contract at a
// given price level. Options move in nickels above the penny threshold;
// index futures move in quarters; everything else trades in pennies.
func TickIncrement(c Contract, price float64) float64 {
	switch c.SecType {
	case SecTypeOption:
		if price < 3.00 {
			return 0.01
		}
		return 0.05
	case SecTypeFuture:
		return 0.25
	default:
		return 0.01
	}
}

// ComplyPrice rounds price to the contract's valid tick increment.
func ComplyPrice(c Contract, price float64) float64 {
	inc := TickIncrement(c, price)
	ticks := math.Round(price / inc)
	// re-round to clean up float residue from the division
	return math.Round(ticks*inc*1e8) / 1e8
}
