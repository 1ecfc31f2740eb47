package orders

import (
	"fmt"

	"github.com/mfields/tradeshell/internal/instrument"
)

// BracketConfig controls bracket construction policy.
type BracketConfig struct {
	// SubmitStop includes the stop-loss leg in the submitted group.
	// The default policy is a profit-only bracket: the stop leg is
	// computed and returned but withheld from submission.
	SubmitStop bool
}

// IDSource allocates gateway order ids ahead of submission. Dependent
// legs need the parent's id before the parent itself is placed.
type IDSource interface {
	NextOrderID() int64
}

// Bracket is a linked parent/profit/stop order triple. The parent is
// non-transmitting and the dependent legs transmit, so the group
// activates atomically at the gateway.
type Bracket struct {
	Parent Order
	Profit Order
	Stop   Order

	// SubmitStop mirrors the config the bracket was built with.
	SubmitStop bool
}

// Orders returns the legs to submit, in submission order.
func (b Bracket) Orders() []Order {
	if b.SubmitStop {
		return []Order{b.Parent, b.Profit, b.Stop}
	}
	return []Order{b.Parent, b.Profit}
}

// boundsByPercentDifference returns the prices below and above mid whose
// percentage difference from mid equals pct (fractional, 0.01 = 1%).
func boundsByPercentDifference(mid, pct float64) (lower, upper float64) {
	lower = (2 * mid) / (2 + pct)
	upper = (2 * mid) / (2 - pct)
	return lower, upper
}

// BuildBracket constructs a bracket entry around the current ask. For a
// long entry the stop sits at the lower band, the profit leg trails by
// the band width, and the opening limit rests one tick above the ask so
// the entry crosses immediately; a short entry inverts all three.
func BuildBracket(cfg BracketConfig, ids IDSource, c instrument.Contract, action Action, qty, ask, riskPct float64) (Bracket, error) {
	if qty <= 0 {
		return Bracket{}, fmt.Errorf("bracket: quantity must be positive, got %v", qty)
	}
	if ask <= 0 {
		return Bracket{}, fmt.Errorf("bracket: entry price must be positive, got %v", ask)
	}

	lower, upper := boundsByPercentDifference(ask, riskPct)
	tick := instrument.TickIncrement(c, ask)

	var lossPrice, trailStop, openLimit float64
	if action == ActionBuy {
		lossPrice = lower
		trailStop = instrument.ComplyPrice(c, ask-lower)
		openLimit = instrument.ComplyPrice(c, ask+tick)
	} else {
		lossPrice = upper
		trailStop = instrument.ComplyPrice(c, upper-ask)
		openLimit = instrument.ComplyPrice(c, ask-tick)
	}
	lossPrice = instrument.ComplyPrice(c, lossPrice)

	// Manual ids: dependent legs must reference the parent before the
	// parent is submitted.
	parent := Order{
		ID:         ids.NextOrderID(),
		Action:     action,
		Type:       TypeLimit,
		Qty:        qty,
		LmtPrice:   openLimit,
		TIF:        TIFGoodTillCancel,
		OutsideRTH: true,
		Transmit:   false,
	}

	profit := Order{
		ID:             ids.NextOrderID(),
		ParentID:       parent.ID,
		Action:         action.Opposite(),
		Type:           TypeTrailLimit,
		Qty:            qty,
		TIF:            TIFGoodTillCancel,
		OutsideRTH:     true,
		Transmit:       true,
		TrailStopPrice: lossPrice, // initial trigger level if price moves against us immediately
		LmtPriceOffset: 0.75,      // limit offset applied when the stop triggers
		AuxPrice:       trailStop, // trailing amount before the stop triggers
	}

	stop := Order{
		ID:       ids.NextOrderID(),
		ParentID: parent.ID,
		Action:   action.Opposite(),
		Type:     TypeStopProtec,
		Qty:      qty,
		TIF:      TIFGoodTillCancel,
		Transmit: true,
		AuxPrice: lossPrice,
	}

	return Bracket{
		Parent:     parent,
		Profit:     profit,
		Stop:       stop,
		SubmitStop: cfg.SubmitStop,
	}, nil
}
