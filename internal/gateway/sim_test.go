package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
)

func TestSimQualifyKeepsRequestedExchange(t *testing.T) {
	sim := NewSim("DU1")
	sim.Seed(instrument.Equity("SPY", "SMART", "USD"))

	in := instrument.Equity("SPY", "ARCA", "USD")
	out, err := sim.Qualify(context.Background(), []instrument.Contract{in})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Qualified())
	assert.Equal(t, "ARCA", out[0].Exchange)
}

func TestSimQualifyLeavesUnknownUnqualified(t *testing.T) {
	sim := NewSim("DU1")

	out, err := sim.Qualify(context.Background(), []instrument.Contract{instrument.Equity("NOPE", "SMART", "USD")})
	require.NoError(t, err)
	assert.False(t, out[0].Qualified())
}

func TestSimTransmittedLimitFillsAndReports(t *testing.T) {
	sim := NewSim("DU1")
	spy := sim.Seed(instrument.Equity("SPY", "SMART", "USD"))

	tr, err := sim.PlaceOrder(context.Background(), spy, orders.Order{
		Action: orders.ActionBuy, Type: orders.TypeLimit, Qty: 10, LmtPrice: 100, Transmit: true,
	})
	require.NoError(t, err)
	assert.True(t, tr.Done())

	// submitted then filled
	assert.Equal(t, orders.StatusSubmitted, (<-sim.OrderStatus()).Status)
	assert.Equal(t, orders.StatusFilled, (<-sim.OrderStatus()).Status)

	fill := <-sim.Fills()
	assert.Equal(t, 10.0, fill.Qty)
	assert.Equal(t, 100.0, fill.Price)

	comm := <-sim.Commissions()
	assert.Equal(t, fill.ExecID, comm.ExecID)
}

func TestSimWithheldOrderStaysOpen(t *testing.T) {
	sim := NewSim("DU1")
	spy := sim.Seed(instrument.Equity("SPY", "SMART", "USD"))

	tr, err := sim.PlaceOrder(context.Background(), spy, orders.Order{
		ID: sim.NextOrderID(), Action: orders.ActionBuy, Type: orders.TypeLimit,
		Qty: 10, LmtPrice: 100, Transmit: false,
	})
	require.NoError(t, err)
	assert.False(t, tr.Done())

	open, err := sim.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, sim.CancelOrder(context.Background(), tr.Order.ID))
	open, err = sim.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSimPositionsNetAcrossFills(t *testing.T) {
	sim := NewSim("DU1")
	spy := sim.Seed(instrument.Equity("SPY", "SMART", "USD"))

	place := func(action orders.Action, qty float64) {
		_, err := sim.PlaceOrder(context.Background(), spy, orders.Order{
			Action: action, Type: orders.TypeLimit, Qty: qty, LmtPrice: 100, Transmit: true,
		})
		require.NoError(t, err)
	}
	place(orders.ActionBuy, 10)
	place(orders.ActionSell, 4)

	positions, err := sim.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 6.0, positions[0].Qty)
}
