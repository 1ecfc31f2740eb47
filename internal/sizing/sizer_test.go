package sizing

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
	"github.com/mfields/tradeshell/pkg/logger"
)

type recordingSub struct {
	keys []string
}

func (r *recordingSub) SubscribeQuote(_ context.Context, c instrument.Contract) error {
	r.keys = append(r.keys, c.QuoteKey())
	return nil
}

func newSizer(t *testing.T) (*Sizer, *quotes.Registry, *recordingSub) {
	t.Helper()
	reg := quotes.NewRegistry(logger.NewNop())
	sub := &recordingSub{}
	return New(reg, sub, time.Millisecond, 3, 0.005), reg, sub
}

func TestDeriveExplicitQtyAndPrice(t *testing.T) {
	s, _, _ := newSizer(t)

	opt := instrument.Contract{Symbol: "AAPL", SecType: instrument.SecTypeOption, Multiplier: 100}
	got, err := s.Derive(context.Background(), opt, orders.ActionBuy, 2, 2.503)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Qty)
	assert.Equal(t, 2.50, got.Price) // snapped to the 0.01 increment
}

func TestDeriveBudgetEquity(t *testing.T) {
	s, _, _ := newSizer(t)

	eq := instrument.Equity("SPY", "SMART", "USD")
	got, err := s.Derive(context.Background(), eq, orders.ActionBuy, -1000, 50)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Qty)
	assert.Equal(t, 50.0, got.Price)
}

func TestDeriveBudgetOptionUsesMultiplier(t *testing.T) {
	s, _, _ := newSizer(t)

	opt := instrument.Contract{Symbol: "AAPL", SecType: instrument.SecTypeOption, Multiplier: 100}
	got, err := s.Derive(context.Background(), opt, orders.ActionBuy, -1000, 2.50)
	require.NoError(t, err)

	// $1000 / ($2.50 x 100) = 4 contracts
	assert.Equal(t, 4.0, got.Qty)
}

func TestDeriveBudgetCryptoFractional(t *testing.T) {
	s, _, _ := newSizer(t)

	btc := instrument.Crypto("BTC", "PAXOS", "USD")
	got, err := s.Derive(context.Background(), btc, orders.ActionBuy, -1000, 333.33)
	require.NoError(t, err)

	// Crypto keeps fractional units, rounded to eight places.
	assert.InDelta(t, 3.00003000, got.Qty, 1e-8)
}

func TestDeriveBudgetWholeUnitsFloor(t *testing.T) {
	s, _, _ := newSizer(t)

	eq := instrument.Equity("SPY", "SMART", "USD")
	got, err := s.Derive(context.Background(), eq, orders.ActionBuy, -999, 50)
	require.NoError(t, err)
	assert.Equal(t, 19.0, got.Qty)
}

func TestDerivePriceFromQuoteBuyBias(t *testing.T) {
	s, reg, sub := newSizer(t)

	eq := instrument.Equity("SPY", "SMART", "USD")
	key, _ := reg.Subscribe(eq)
	reg.Apply(quotes.Tick{Key: key, Bid: 100, Ask: 101, Last: 100.5})

	got, err := s.Derive(context.Background(), eq, orders.ActionBuy, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, sub.keys)

	// midpoint 100.5 biased up 0.5% then snapped to a cent
	assert.Equal(t, 101.0, got.Price)
	assert.Equal(t, 5.0, got.Qty)
}

func TestDerivePriceSellBiasesDown(t *testing.T) {
	s, reg, _ := newSizer(t)

	eq := instrument.Equity("SPY", "SMART", "USD")
	key, _ := reg.Subscribe(eq)
	reg.Apply(quotes.Tick{Key: key, Bid: 100, Ask: 101})

	got, err := s.Derive(context.Background(), eq, orders.ActionSell, 5, 0)
	require.NoError(t, err)
	assert.Less(t, got.Price, 100.5)
}

func TestDerivePriceOptionMidpointNoBias(t *testing.T) {
	s, reg, _ := newSizer(t)

	opt := instrument.Contract{
		Symbol: "AAPL", LocalSymbol: "AAPL240621C00200000",
		SecType: instrument.SecTypeOption, Multiplier: 100,
	}
	key, _ := reg.Subscribe(opt)
	reg.Apply(quotes.Tick{Key: key, Bid: 2.40, Ask: 2.60})

	got, err := s.Derive(context.Background(), opt, orders.ActionBuy, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.50, got.Price)
}

func TestDerivePriceOptionHalfAskWhenNoBid(t *testing.T) {
	s, reg, _ := newSizer(t)

	opt := instrument.Contract{
		Symbol: "AAPL", LocalSymbol: "AAPL240621C00200000",
		SecType: instrument.SecTypeOption, Multiplier: 100,
	}
	key, _ := reg.Subscribe(opt)
	reg.Apply(quotes.Tick{Key: key, Bid: math.NaN(), Ask: 3.00})

	got, err := s.Derive(context.Background(), opt, orders.ActionBuy, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.50, got.Price)
}

func TestDeriveEmptyBidSideUsesAsk(t *testing.T) {
	s, reg, _ := newSizer(t)

	eq := instrument.Equity("THIN", "SMART", "USD")
	key, _ := reg.Subscribe(eq)
	reg.Apply(quotes.Tick{Key: key, Bid: -1, Ask: 10.00})

	got, err := s.Derive(context.Background(), eq, orders.ActionBuy, 1, 0)
	require.NoError(t, err)

	// both sides collapse to the ask, biased up and snapped
	assert.Equal(t, 10.05, got.Price)
}

func TestDeriveNoQuoteTimesOut(t *testing.T) {
	s, _, _ := newSizer(t)

	eq := instrument.Equity("DEAD", "SMART", "USD")
	_, err := s.Derive(context.Background(), eq, orders.ActionBuy, 1, 0)
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestDeriveZeroQuantity(t *testing.T) {
	s, _, _ := newSizer(t)

	eq := instrument.Equity("SPY", "SMART", "USD")
	_, err := s.Derive(context.Background(), eq, orders.ActionBuy, -10, 50)
	assert.ErrorIs(t, err, ErrZeroQuantity)

	_, err = s.Derive(context.Background(), eq, orders.ActionBuy, 0, 50)
	assert.ErrorIs(t, err, ErrZeroQuantity)
}
