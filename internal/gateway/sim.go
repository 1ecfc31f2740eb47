package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
)

const simEventBuffer = 256

// Sim is an in-memory Gateway used by paper mode and tests. Contracts
// qualify against a symbol table seeded with Seed, quote subscriptions
// echo whatever ticks the caller pushes with PushTick, and orders fill
// immediately at their limit price.
type Sim struct {
	mu        sync.Mutex
	contracts map[string]instrument.Contract // symbol -> qualified contract
	subs      map[string]instrument.Contract
	trades    map[int64]*orders.Trade
	positions map[int64]*Position
	account   string
	connected bool
	nextID    atomic.Int64
	nextConID atomic.Int64

	ticks       chan quotes.Tick
	accountVals chan AccountValue
	pnl         chan PnLUpdate
	pnlSingle   chan PnLSingleUpdate
	status      chan orders.StatusUpdate
	fills       chan orders.Fill
	commissions chan orders.CommissionReport
	errs        chan APIError
	news        chan NewsBulletin
	disconnects chan error
}

// NewSim returns a Sim with the given account id reported on the first
// account summary request.
func NewSim(account string) *Sim {
	s := &Sim{
		contracts: make(map[string]instrument.Contract),
		subs:      make(map[string]instrument.Contract),
		trades:    make(map[int64]*orders.Trade),
		positions: make(map[int64]*Position),
		account:   account,

		ticks:       make(chan quotes.Tick, simEventBuffer),
		accountVals: make(chan AccountValue, simEventBuffer),
		pnl:         make(chan PnLUpdate, simEventBuffer),
		pnlSingle:   make(chan PnLSingleUpdate, simEventBuffer),
		status:      make(chan orders.StatusUpdate, simEventBuffer),
		fills:       make(chan orders.Fill, simEventBuffer),
		commissions: make(chan orders.CommissionReport, simEventBuffer),
		errs:        make(chan APIError, simEventBuffer),
		news:        make(chan NewsBulletin, simEventBuffer),
		disconnects: make(chan error, simEventBuffer),
	}
	s.nextID.Store(1)
	s.nextConID.Store(1000)
	return s
}

// Seed registers a contract so Qualify can resolve it. A zero ID gets a
// generated one. Contracts are keyed by local symbol so several option
// legs of one underlying coexist.
func (s *Sim) Seed(c instrument.Contract) instrument.Contract {
	if c.ID == 0 {
		c.ID = s.nextConID.Add(1)
	}
	if c.LocalSymbol == "" {
		c.LocalSymbol = c.Symbol
	}
	s.mu.Lock()
	s.contracts[c.LocalSymbol] = c
	s.mu.Unlock()
	return c
}

func seedKey(c instrument.Contract) string {
	if c.LocalSymbol != "" {
		return c.LocalSymbol
	}
	return c.Symbol
}

func (s *Sim) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

// Drop simulates a connection loss: live subscriptions are gone and an
// event lands on the Disconnects stream, as with a real gateway restart.
func (s *Sim) Drop(err error) {
	s.mu.Lock()
	s.connected = false
	s.subs = make(map[string]instrument.Contract)
	s.mu.Unlock()
	s.disconnects <- err
}

func (s *Sim) Qualify(ctx context.Context, cs []instrument.Contract) ([]instrument.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]instrument.Contract, len(cs))
	for i, c := range cs {
		if seeded, ok := s.contracts[seedKey(c)]; ok && seeded.SecType == c.SecType {
			exch := c.Exchange
			c = seeded
			if exch != "" {
				c.Exchange = exch
			}
		}
		out[i] = c
	}
	return out, nil
}

func (s *Sim) SubscribeQuote(ctx context.Context, c instrument.Contract) error {
	s.mu.Lock()
	s.subs[c.QuoteKey()] = c
	s.mu.Unlock()
	return nil
}

func (s *Sim) UnsubscribeQuote(ctx context.Context, c instrument.Contract) error {
	s.mu.Lock()
	delete(s.subs, c.QuoteKey())
	s.mu.Unlock()
	return nil
}

// Subscribed reports whether a live subscription exists for key.
func (s *Sim) Subscribed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[key]
	return ok
}

// PushTick feeds a tick into the Ticks stream as the live gateway would.
func (s *Sim) PushTick(t quotes.Tick) {
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	s.ticks <- t
}

func (s *Sim) PlaceOrder(ctx context.Context, c instrument.Contract, o orders.Order) (*orders.Trade, error) {
	if o.ID == 0 {
		o.ID = s.NextOrderID()
	}
	tr := &orders.Trade{
		Contract:    c,
		Order:       o,
		Status:      orders.StatusSubmitted,
		Remaining:   o.Qty,
		SubmittedAt: time.Now(),
	}
	s.mu.Lock()
	s.trades[o.ID] = tr
	s.mu.Unlock()

	s.status <- orders.StatusUpdate{OrderID: o.ID, Status: orders.StatusSubmitted, Remaining: o.Qty}
	if o.Transmit && o.Type == orders.TypeLimit {
		s.fill(tr)
	}
	return tr, nil
}

func (s *Sim) fill(tr *orders.Trade) {
	s.mu.Lock()
	tr.Status = orders.StatusFilled
	tr.Filled = tr.Order.Qty
	tr.Remaining = 0
	tr.AvgFillPrice = tr.Order.LmtPrice
	tr.UpdatedAt = time.Now()
	signed := tr.Order.Qty
	if tr.Order.Action == orders.ActionSell {
		signed = -signed
	}
	pos, ok := s.positions[tr.Contract.ID]
	if !ok {
		pos = &Position{Contract: tr.Contract}
		s.positions[tr.Contract.ID] = pos
	}
	pos.Qty += signed
	pos.AvgCost = tr.Order.LmtPrice * tr.Contract.EffectiveMultiplier()
	s.mu.Unlock()

	s.status <- orders.StatusUpdate{
		OrderID:      tr.Order.ID,
		Status:       orders.StatusFilled,
		Filled:       tr.Order.Qty,
		AvgFillPrice: tr.Order.LmtPrice,
	}
	execID := fmt.Sprintf("sim-%d", tr.Order.ID)
	s.fills <- orders.Fill{
		OrderID: tr.Order.ID,
		ConID:   tr.Contract.ID,
		Symbol:  tr.Contract.Symbol,
		Action:  tr.Order.Action,
		Qty:     tr.Order.Qty,
		Price:   tr.Order.LmtPrice,
		CumQty:  tr.Order.Qty,
		Time:    time.Now(),
		ExecID:  execID,
	}
	s.commissions <- orders.CommissionReport{
		ExecID:     execID,
		Commission: 1.0,
		Currency:   "USD",
	}
}

func (s *Sim) PreviewOrder(ctx context.Context, c instrument.Contract, o orders.Order) (*orders.MarginEstimate, error) {
	cost := o.LmtPrice * o.Qty * c.EffectiveMultiplier()
	return &orders.MarginEstimate{
		InitMarginChange:    cost * 0.5,
		MaintMarginChange:   cost * 0.25,
		EquityWithLoanAfter: 100000 - cost*0.5,
		InitMarginAfter:     cost * 0.5,
		MinCommission:       1.0,
		MaxCommission:       1.0,
	}, nil
}

func (s *Sim) CancelOrder(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	tr, ok := s.trades[orderID]
	if ok && !tr.Done() {
		tr.Status = orders.StatusCancelled
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("sim: unknown order %d", orderID)
	}
	s.status <- orders.StatusUpdate{OrderID: orderID, Status: orders.StatusCancelled}
	return nil
}

func (s *Sim) NextOrderID() int64 {
	return s.nextID.Add(1) - 1
}

func (s *Sim) Positions(ctx context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.Qty != 0 {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Sim) OpenTrades(ctx context.Context) ([]orders.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Trade, 0, len(s.trades))
	for _, tr := range s.trades {
		if !tr.Done() {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (s *Sim) RequestAccountSummary(ctx context.Context) error {
	s.accountVals <- AccountValue{Account: s.account, Tag: "AccountType", Value: "INDIVIDUAL"}
	s.accountVals <- AccountValue{Account: s.account, Tag: "NetLiquidation", Value: "100000.00", Currency: "USD"}
	s.accountVals <- AccountValue{Account: s.account, Tag: "BuyingPower", Value: "400000.00", Currency: "USD"}
	s.accountVals <- AccountValue{Account: s.account, Tag: "TotalCashValue", Value: "100000.00", Currency: "USD"}
	return nil
}

func (s *Sim) RequestPnL(ctx context.Context, account string) error {
	s.pnl <- PnLUpdate{Account: account}
	return nil
}

func (s *Sim) RequestPnLSingle(ctx context.Context, account string, conID int64) error {
	s.pnlSingle <- PnLSingleUpdate{ConID: conID}
	return nil
}

func (s *Sim) CancelPnLSingle(ctx context.Context, conID int64) error { return nil }

func (s *Sim) SubscribeNews(ctx context.Context, enabled bool) error { return nil }

func (s *Sim) Ticks() <-chan quotes.Tick                   { return s.ticks }
func (s *Sim) AccountValues() <-chan AccountValue          { return s.accountVals }
func (s *Sim) PnL() <-chan PnLUpdate                       { return s.pnl }
func (s *Sim) PnLSingle() <-chan PnLSingleUpdate           { return s.pnlSingle }
func (s *Sim) OrderStatus() <-chan orders.StatusUpdate     { return s.status }
func (s *Sim) Fills() <-chan orders.Fill                   { return s.fills }
func (s *Sim) Commissions() <-chan orders.CommissionReport { return s.commissions }
func (s *Sim) Errors() <-chan APIError                     { return s.errs }
func (s *Sim) News() <-chan NewsBulletin                   { return s.news }
func (s *Sim) Disconnects() <-chan error                   { return s.disconnects }

var _ Gateway = (*Sim)(nil)
