package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/pkg/logger"
)

// ErrLegUnresolved marks a spread whose legs did not all qualify. A
// partially assembled combination must never be submitted.
var ErrLegUnresolved = errors.New("spread leg did not qualify")

// legResolver is the slice of the instrument resolver the assembler
// needs.
type legResolver interface {
	Resolve(ctx context.Context, contracts []instrument.Contract) ([]instrument.Result, error)
}

// Assembler builds combination contracts from multi-leg requests.
type Assembler struct {
	resolver legResolver
	logger   *logger.Logger
}

// NewAssembler creates a spread assembler over the given resolver.
func NewAssembler(resolver legResolver, log *logger.Logger) *Assembler {
	return &Assembler{resolver: resolver, logger: log}
}

// Assemble resolves every leg of the request and returns a single
// combination contract referencing the resolved leg identities. Each leg
// keeps its own resolution exchange: legs of a combination may route
// through different venues than the combination itself. Any unresolved
// leg fails the whole assembly.
func (a *Assembler) Assemble(ctx context.Context, legs []Leg, exchange, currency string) (instrument.Contract, error) {
	if len(legs) == 0 {
		return instrument.Contract{}, fmt.Errorf("assemble: no legs")
	}

	raw := make([]instrument.Contract, len(legs))
	for i, leg := range legs {
		raw[i] = instrument.FromSymbol(leg.Symbol, exchange, currency)
	}

	results, err := a.resolver.Resolve(ctx, raw)
	if err != nil {
		return instrument.Contract{}, fmt.Errorf("assemble spread: %w", err)
	}

	var failed []string
	for i, res := range results {
		if res.Err != nil || !res.Contract.Qualified() {
			failed = append(failed, legs[i].Symbol)
		}
	}
	if len(failed) > 0 {
		a.logger.WithField("legs", failed).Error("Spread legs failed to qualify")
		return instrument.Contract{}, fmt.Errorf("%s: %w", strings.Join(failed, ","), ErrLegUnresolved)
	}

	comboLegs := make([]instrument.ComboLeg, len(legs))
	for i, res := range results {
		action := ActionBuy
		if legs[i].Action == ActionSell {
			action = ActionSell
		}

		legExchange := res.Contract.Exchange
		if legExchange == "" {
			legExchange = exchange
		}

		ratio := legs[i].Ratio
		if ratio <= 0 {
			ratio = 1
		}

		comboLegs[i] = instrument.ComboLeg{
			ConID:    res.Contract.ID,
			Ratio:    ratio,
			Action:   string(action),
			Exchange: legExchange,
		}
	}

	// The combination's nominal underlying comes from the first leg; the
	// bag itself routes through the requested exchange while each leg
	// keeps its own venue.
	return instrument.Contract{
		Symbol:       results[0].Contract.Symbol,
		SecType:      instrument.SecTypeCombo,
		Exchange:     exchange,
		Currency:     currency,
		TradingClass: "COMB",
		ComboLegs:    comboLegs,
	}, nil
}
