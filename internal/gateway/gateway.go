package gateway

import (
	"context"
	"time"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
)

// AccountValue is one account summary row pushed by the gateway.
type AccountValue struct {
	Account  string
	Tag      string
	Value    string
	Currency string
}

// PnLUpdate is an aggregate account PnL event.
type PnLUpdate struct {
	Account    string
	Unrealized float64
	Realized   float64
	Daily      float64
}

// PnLSingleUpdate is the per-position PnL stream payload.
type PnLSingleUpdate struct {
	ConID      int64
	Unrealized float64
	Realized   float64
	Daily      float64
	Value      float64
}

// APIError is an error event pushed by the gateway, correlated by order
// id where one applies.
type APIError struct {
	OrderID int64
	Code    int
	Message string
}

// NewsBulletin is a push news event; Message arrives as HTML.
type NewsBulletin struct {
	ID      int
	Origin  string
	Message string
	Time    time.Time
}

// Position is one portfolio row.
type Position struct {
	Contract    instrument.Contract
	Qty         float64
	AvgCost     float64
	MarketPrice float64
}

// Gateway is the opaque asynchronous brokerage client the terminal runs
// against. Request methods block on the gateway round trip; push traffic
// arrives on the per-kind event streams, which stay valid across
// reconnects so consumers are wired exactly once.
type Gateway interface {
	Connect(ctx context.Context) error
	Close() error

	Qualify(ctx context.Context, contracts []instrument.Contract) ([]instrument.Contract, error)
	SubscribeQuote(ctx context.Context, c instrument.Contract) error
	UnsubscribeQuote(ctx context.Context, c instrument.Contract) error

	PlaceOrder(ctx context.Context, c instrument.Contract, o orders.Order) (*orders.Trade, error)
	PreviewOrder(ctx context.Context, c instrument.Contract, o orders.Order) (*orders.MarginEstimate, error)
	CancelOrder(ctx context.Context, orderID int64) error
	NextOrderID() int64

	Positions(ctx context.Context) ([]Position, error)
	OpenTrades(ctx context.Context) ([]orders.Trade, error)

	RequestAccountSummary(ctx context.Context) error
	RequestPnL(ctx context.Context, account string) error
	RequestPnLSingle(ctx context.Context, account string, conID int64) error
	CancelPnLSingle(ctx context.Context, conID int64) error
	SubscribeNews(ctx context.Context, enabled bool) error

	// Event streams
	Ticks() <-chan quotes.Tick
	AccountValues() <-chan AccountValue
	PnL() <-chan PnLUpdate
	PnLSingle() <-chan PnLSingleUpdate
	OrderStatus() <-chan orders.StatusUpdate
	Fills() <-chan orders.Fill
	Commissions() <-chan orders.CommissionReport
	Errors() <-chan APIError
	News() <-chan NewsBulletin
	Disconnects() <-chan error
}
