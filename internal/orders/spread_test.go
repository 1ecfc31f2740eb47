package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/pkg/logger"
)

// tableResolver resolves from a fixed symbol table without a gateway.
type tableResolver struct {
	table map[string]instrument.Contract
}

func (r *tableResolver) Resolve(_ context.Context, contracts []instrument.Contract) ([]instrument.Result, error) {
	out := make([]instrument.Result, len(contracts))
	for i, c := range contracts {
		key := c.LocalSymbol
		if key == "" {
			key = c.Symbol
		}
		if resolved, ok := r.table[key]; ok {
			if resolved.Exchange == "" {
				resolved.Exchange = c.Exchange
			}
			out[i] = instrument.Result{Contract: resolved}
			continue
		}
		out[i] = instrument.Result{Contract: c, Err: instrument.ErrUnqualified}
	}
	return out, nil
}

func TestAssembleSpread(t *testing.T) {
	resolver := &tableResolver{table: map[string]instrument.Contract{
		"SPY240621C00540000": {
			ID: 111, Symbol: "SPY", LocalSymbol: "SPY   240621C00540000",
			SecType: instrument.SecTypeOption, Multiplier: 100,
		},
		"SPY240621C00550000": {
			ID: 222, Symbol: "SPY", LocalSymbol: "SPY   240621C00550000",
			SecType: instrument.SecTypeOption, Multiplier: 100,
		},
	}}
	a := NewAssembler(resolver, logger.NewNop())

	legs := []Leg{
		{Symbol: "SPY240621C00540000", Action: ActionBuy, Ratio: 1},
		{Symbol: "SPY240621C00550000", Action: ActionSell, Ratio: 1},
	}

	combo, err := a.Assemble(context.Background(), legs, "SMART", "USD")
	require.NoError(t, err)

	assert.Equal(t, instrument.SecTypeCombo, combo.SecType)
	assert.True(t, combo.IsCombo())
	assert.Equal(t, "SPY", combo.Symbol, "underlying comes from the first leg")
	require.Len(t, combo.ComboLegs, 2)

	assert.Equal(t, int64(111), combo.ComboLegs[0].ConID)
	assert.Equal(t, "BUY", combo.ComboLegs[0].Action)
	assert.Equal(t, int64(222), combo.ComboLegs[1].ConID)
	assert.Equal(t, "SELL", combo.ComboLegs[1].Action)
}

func TestAssembleRoutesComboThroughRequestedExchange(t *testing.T) {
	// One leg trades on its own venue; the bag itself must still route
	// through the exchange the caller asked for.
	resolver := &tableResolver{table: map[string]instrument.Contract{
		"AAPL": {ID: 1, Symbol: "AAPL", LocalSymbol: "AAPL", SecType: instrument.SecTypeEquity},
		"MSFT": {ID: 2, Symbol: "MSFT", LocalSymbol: "MSFT", SecType: instrument.SecTypeEquity, Exchange: "ISLAND"},
	}}
	a := NewAssembler(resolver, logger.NewNop())

	legs := []Leg{
		{Symbol: "AAPL", Action: ActionBuy, Ratio: 1},
		{Symbol: "MSFT", Action: ActionSell, Ratio: 1},
	}

	combo, err := a.Assemble(context.Background(), legs, "SMART", "USD")
	require.NoError(t, err)

	assert.Equal(t, "SMART", combo.Exchange)
	assert.Equal(t, "SMART", combo.ComboLegs[0].Exchange)
	assert.Equal(t, "ISLAND", combo.ComboLegs[1].Exchange)
}

func TestAssembleFailsWhenLegUnresolved(t *testing.T) {
	resolver := &tableResolver{table: map[string]instrument.Contract{
		"SPY240621C00540000": {
			ID: 111, Symbol: "SPY", LocalSymbol: "SPY   240621C00540000",
			SecType: instrument.SecTypeOption,
		},
	}}
	a := NewAssembler(resolver, logger.NewNop())

	legs := []Leg{
		{Symbol: "SPY240621C00540000", Action: ActionBuy, Ratio: 1},
		{Symbol: "SPY240621C99999999", Action: ActionSell, Ratio: 1},
	}

	_, err := a.Assemble(context.Background(), legs, "SMART", "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLegUnresolved)
	assert.Contains(t, err.Error(), "SPY240621C99999999")
}

func TestAssembleNoLegs(t *testing.T) {
	a := NewAssembler(&tableResolver{}, logger.NewNop())
	_, err := a.Assemble(context.Background(), nil, "SMART", "USD")
	assert.Error(t, err)
}

func TestAssembleDefaultsRatio(t *testing.T) {
	resolver := &tableResolver{table: map[string]instrument.Contract{
		"AAPL": {ID: 1, Symbol: "AAPL", LocalSymbol: "AAPL", SecType: instrument.SecTypeEquity},
		"MSFT": {ID: 2, Symbol: "MSFT", LocalSymbol: "MSFT", SecType: instrument.SecTypeEquity},
	}}
	a := NewAssembler(resolver, logger.NewNop())

	legs := []Leg{
		{Symbol: "AAPL", Action: ActionBuy},
		{Symbol: "MSFT", Action: ActionSell},
	}

	combo, err := a.Assemble(context.Background(), legs, "SMART", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1, combo.ComboLegs[0].Ratio)
	assert.Equal(t, 1, combo.ComboLegs[1].Ratio)
}

func TestRequestShape(t *testing.T) {
	single := Request{Legs: []Leg{{Symbol: "AAPL", Action: ActionBuy, Qty: 10}}}
	assert.True(t, single.IsSingle())
	assert.False(t, single.IsSpread())

	spread := Request{Legs: []Leg{
		{Symbol: "A", Action: ActionBuy},
		{Symbol: "B", Action: ActionSell},
	}}
	assert.True(t, spread.IsSpread())

	dollar := Leg{Symbol: "AAPL", Action: ActionBuy, Qty: -3000}
	assert.True(t, dollar.DollarSized())
	assert.False(t, Leg{Qty: 10}.DollarSized())
}

func TestTIFFor(t *testing.T) {
	crypto := instrument.Contract{SecType: instrument.SecTypeCrypto}
	equity := instrument.Contract{SecType: instrument.SecTypeEquity}

	assert.Equal(t, TIFMinutes, TIFFor(crypto, ActionBuy))
	assert.Equal(t, TIFGoodTillCancel, TIFFor(crypto, ActionSell))
	assert.Equal(t, TIFGoodTillCancel, TIFFor(equity, ActionBuy))
}
