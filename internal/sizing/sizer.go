// Package sizing turns order requests into concrete quantities and
// limit prices, deriving both from live quotes when the caller gave a
// cash amount instead of a share count.
package sizing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
)

var (
	// ErrNoQuote means no usable market data arrived within the wait
	// window, so no price could be derived.
	ErrNoQuote = errors.New("no usable quote")

	// ErrZeroQuantity means the cash amount buys less than one unit at
	// the derived price.
	ErrZeroQuantity = errors.New("amount too small for one unit")
)

// quantityPlaces bounds fractional quantities to what the gateway
// accepts.
const quantityPlaces = 8

// Subscriber issues a market data subscription for a contract.
type Subscriber interface {
	SubscribeQuote(ctx context.Context, c instrument.Contract) error
}

// Sized is the outcome of price and quantity derivation.
type Sized struct {
	Qty   float64
	Price float64
}

// Sizer derives order quantity and limit price. A negative request
// quantity is a cash budget: the sizer waits for a quote, derives an
// aggressive midpoint price, and converts the budget into units.
type Sizer struct {
	Quotes *quotes.Registry
	Sub    Subscriber

	// WaitInterval and WaitAttempts bound the quote wait.
	WaitInterval time.Duration
	WaitAttempts int

	// MidpointBias widens the derived limit past the midpoint so
	// marketable orders cross the spread. Options are quoted tight
	// enough that they trade at the plain midpoint.
	MidpointBias float64
}

// New returns a Sizer with the given wait policy.
func New(reg *quotes.Registry, sub Subscriber, interval time.Duration, attempts int, bias float64) *Sizer {
	return &Sizer{
		Quotes:       reg,
		Sub:          sub,
		WaitInterval: interval,
		WaitAttempts: attempts,
		MidpointBias: bias,
	}
}

// Derive resolves the final quantity and limit price for one leg.
// qty > 0 is a unit count; qty < 0 is a cash budget in the contract's
// currency. price > 0 is an explicit limit, snapped to the contract's
// tick increment; price <= 0 derives one from the live quote.
func (s *Sizer) Derive(ctx context.Context, c instrument.Contract, action orders.Action, qty, price float64) (Sized, error) {
	if qty == 0 {
		return Sized{}, ErrZeroQuantity
	}

	if price > 0 {
		price = instrument.ComplyPrice(c, price)
	} else {
		derived, err := s.derivePrice(ctx, c, action)
		if err != nil {
			return Sized{}, err
		}
		price = derived
	}

	if qty > 0 {
		return Sized{Qty: qty, Price: price}, nil
	}

	amount := -qty
	units, err := unitsFor(c, amount, price)
	if err != nil {
		return Sized{}, err
	}
	return Sized{Qty: units, Price: price}, nil
}

// derivePrice subscribes and polls until both sides of the quote are
// usable, then biases away from the midpoint in the order's favor.
func (s *Sizer) derivePrice(ctx context.Context, c instrument.Contract, action orders.Action) (float64, error) {
	key, _ := s.Quotes.Subscribe(c)
	if s.Sub != nil {
		if err := s.Sub.SubscribeQuote(ctx, c); err != nil {
			return 0, fmt.Errorf("subscribe %s: %w", key, err)
		}
	}

	attempts := s.WaitAttempts
	if attempts <= 0 {
		attempts = 10
	}
	interval := s.WaitInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}

	poll := func() (quotes.Quote, error) {
		q, ok := s.Quotes.Get(key)
		if !ok || !q.Usable() {
			return quotes.Quote{}, ErrNoQuote
		}
		return q, nil
	}

	q, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(uint(attempts)),
	)
	if err != nil {
		return 0, ErrNoQuote
	}

	bid, ask := q.Bid, q.Ask
	// A bid of -1 is the gateway's marker for an empty book side.
	if bid == -1 {
		bid = ask
	}

	var price float64
	if c.SecType.WidenMidpoint() {
		mid := (bid + ask) / 2
		if action == orders.ActionBuy {
			price = mid * (1 + s.bias())
		} else {
			price = mid * (1 - s.bias())
		}
	} else {
		price = (bid + ask) / 2
		if math.IsNaN(price) {
			price = ask / 2
		}
	}

	if math.IsNaN(price) || price <= 0 {
		return 0, ErrNoQuote
	}
	return instrument.ComplyPrice(c, price), nil
}

func (s *Sizer) bias() float64 {
	if s.MidpointBias > 0 {
		return s.MidpointBias
	}
	return 0.005
}

// unitsFor converts a cash amount into contract units at price. The
// multiplier enters the cost only for instruments quoted per-unit of a
// larger deliverable. Whole-unit instruments floor; fractional ones
// round to eight places.
func unitsFor(c instrument.Contract, amount, price float64) (float64, error) {
	if price <= 0 || math.IsNaN(price) {
		return 0, ErrNoQuote
	}

	cost := price
	if c.SecType.MultiplierInCost() {
		cost = price * c.EffectiveMultiplier()
	}

	units := decimal.NewFromFloat(amount).
		Div(decimal.NewFromFloat(cost)).
		Round(quantityPlaces)

	if !c.SecType.Fractional() {
		units = units.Floor()
	}

	out, _ := units.Float64()
	if out <= 0 {
		return 0, fmt.Errorf("%w: %.2f at %.2f", ErrZeroQuantity, amount, price)
	}
	return out, nil
}
