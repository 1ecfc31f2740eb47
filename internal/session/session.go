// Package session owns the live connection to the brokerage gateway:
// account state, open trades, and the supervisor that keeps the
// connection alive and re-arms subscriptions after every reconnect.
package session

import (
	"strings"
	"sync"

	"github.com/mfields/tradeshell/internal/gateway"
	"github.com/mfields/tradeshell/internal/orders"
)

// State is the connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExiting:
		return "exiting"
	default:
		return "disconnected"
	}
}

// Sandbox is the paper-account determination. It stays unknown until
// the first account summary row names a real account id.
type Sandbox int

const (
	SandboxUnknown Sandbox = iota
	SandboxLive
	SandboxPaper
)

// Session is the mutable state of one gateway login.
type Session struct {
	mu sync.RWMutex

	state   State
	account string
	sandbox Sandbox

	summary   map[string]gateway.AccountValue // tag -> latest row
	pnl       gateway.PnLUpdate
	pnlSingle map[int64]gateway.PnLSingleUpdate
	trades    map[int64]*orders.Trade
}

// New creates an empty session. A configured account id may be empty;
// the gateway's summary rows will fill it in.
func New(account string) *Session {
	return &Session{
		account:   account,
		summary:   make(map[string]gateway.AccountValue),
		pnlSingle: make(map[int64]gateway.PnLSingleUpdate),
		trades:    make(map[int64]*orders.Trade),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Exiting reports whether shutdown began; the supervisor stops
// reconnecting once it has.
func (s *Session) Exiting() bool {
	return s.State() == StateExiting
}

// BeginExit marks the session as shutting down.
func (s *Session) BeginExit() {
	s.setState(StateExiting)
}

// Account returns the active account id.
func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Sandbox returns the paper/live determination.
func (s *Session) Sandbox() Sandbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sandbox
}

// ApplyAccountValue folds one summary row into the session. The first
// row naming a concrete account (the gateway uses "All" for aggregate
// rows) pins the account id; paper account ids start with "D".
func (s *Session) ApplyAccountValue(v gateway.AccountValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.Account != "" && v.Account != "All" && s.account == "" {
		s.account = v.Account
	}
	if s.sandbox == SandboxUnknown && s.account != "" {
		if strings.HasPrefix(s.account, "D") {
			s.sandbox = SandboxPaper
		} else {
			s.sandbox = SandboxLive
		}
	}
	s.summary[v.Tag] = v
}

// ResetCaches drops everything learned from the previous connection:
// summary rows, aggregate and per-position PnL, and tracked trades. The
// supervisor calls this on every reconnect so stale values never show
// through a fresh gateway session. The pinned account id and paper
// determination stay; they identify the login, not its state.
func (s *Session) ResetCaches() {
	s.mu.Lock()
	s.summary = make(map[string]gateway.AccountValue)
	s.pnl = gateway.PnLUpdate{}
	s.pnlSingle = make(map[int64]gateway.PnLSingleUpdate)
	s.trades = make(map[int64]*orders.Trade)
	s.mu.Unlock()
}

// SummaryValue returns the latest summary row for tag.
func (s *Session) SummaryValue(tag string) (gateway.AccountValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.summary[tag]
	return v, ok
}

// Summary returns a copy of all summary rows.
func (s *Session) Summary() map[string]gateway.AccountValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]gateway.AccountValue, len(s.summary))
	for k, v := range s.summary {
		out[k] = v
	}
	return out
}

// ApplyPnL stores the latest aggregate PnL.
func (s *Session) ApplyPnL(p gateway.PnLUpdate) {
	s.mu.Lock()
	s.pnl = p
	s.mu.Unlock()
}

// PnL returns the latest aggregate PnL.
func (s *Session) PnL() gateway.PnLUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pnl
}

// ApplyPnLSingle stores a per-position PnL row.
func (s *Session) ApplyPnLSingle(p gateway.PnLSingleUpdate) {
	s.mu.Lock()
	s.pnlSingle[p.ConID] = p
	s.mu.Unlock()
}

// PnLSingle returns the latest per-position PnL for conID.
func (s *Session) PnLSingle(conID int64) (gateway.PnLSingleUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pnlSingle[conID]
	return p, ok
}

// TrackTrade registers a placed trade for status folding.
func (s *Session) TrackTrade(tr *orders.Trade) {
	if tr == nil {
		return
	}
	s.mu.Lock()
	s.trades[tr.Order.ID] = tr
	s.mu.Unlock()
}

// ApplyStatus folds a status push into its tracked trade. Updates for
// unknown order ids are kept as bare trades so externally placed orders
// still show up.
func (s *Session) ApplyStatus(u orders.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.trades[u.OrderID]
	if !ok {
		tr = &orders.Trade{Order: orders.Order{ID: u.OrderID}}
		s.trades[u.OrderID] = tr
	}
	tr.Status = u.Status
	tr.Filled = u.Filled
	tr.Remaining = u.Remaining
	if u.AvgFillPrice > 0 {
		tr.AvgFillPrice = u.AvgFillPrice
	}
}

// OpenTrades returns tracked trades that have not reached a terminal
// state.
func (s *Session) OpenTrades() []orders.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]orders.Trade, 0, len(s.trades))
	for _, tr := range s.trades {
		if !tr.Done() {
			out = append(out, *tr)
		}
	}
	return out
}

// Trade returns the tracked trade for orderID.
func (s *Session) Trade(orderID int64) (orders.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.trades[orderID]
	if !ok {
		return orders.Trade{}, false
	}
	return *tr, true
}
