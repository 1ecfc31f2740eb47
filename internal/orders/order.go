package orders

import (
	"time"

	"github.com/mfields/tradeshell/internal/instrument"
)

// Action represents order direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Opposite returns the closing direction for this action.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// OrderType is the gateway order algorithm.
type OrderType string

const (
	TypeLimit      OrderType = "LMT"
	TypeMarket     OrderType = "MKT"
	TypeTrailLimit OrderType = "TRAIL LIMIT"
	TypeStopProtec OrderType = "STP PRT"
)

// TIF is the time-in-force validity policy for an order.
type TIF string

const (
	TIFGoodTillCancel TIF = "GTC"
	TIFDay            TIF = "DAY"
	TIFMinutes        TIF = "Minutes"
	TIFImmediate      TIF = "IOC"
)

// TIFFor returns the default time-in-force for a contract and direction.
// Crypto buys are restricted to short-lived orders by the gateway.
func TIFFor(c instrument.Contract, action Action) TIF {
	if c.SecType == instrument.SecTypeCrypto && action == ActionBuy {
		return TIFMinutes
	}
	return TIFGoodTillCancel
}

// Status represents broker-side order status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is a broker order ready for submission.
type Order struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id,omitempty"`
	Action   Action `json:"action"`

	Type     OrderType `json:"type"`
	Qty      float64   `json:"qty"`
	LmtPrice float64   `json:"lmt_price,omitempty"`

	// AuxPrice is the stop/trailing amount depending on Type.
	AuxPrice       float64 `json:"aux_price,omitempty"`
	TrailStopPrice float64 `json:"trail_stop_price,omitempty"`
	LmtPriceOffset float64 `json:"lmt_price_offset,omitempty"`

	TIF        TIF  `json:"tif"`
	OutsideRTH bool `json:"outside_rth"`

	// Transmit false holds the order at the gateway until a dependent
	// transmitting order arrives, activating the group atomically.
	Transmit bool `json:"transmit"`
}

// Trade pairs a submitted order with its contract and mutable status.
type Trade struct {
	Contract instrument.Contract `json:"contract"`
	Order    Order               `json:"order"`

	Status       Status  `json:"status"`
	Filled       float64 `json:"filled"`
	Remaining    float64 `json:"remaining"`
	AvgFillPrice float64 `json:"avg_fill_price"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Done reports whether the trade reached a terminal state.
func (t *Trade) Done() bool {
	return t.Status.Terminal()
}

// StatusUpdate is a gateway push event mutating an open trade.
type StatusUpdate struct {
	OrderID      int64
	Status       Status
	Filled       float64
	Remaining    float64
	AvgFillPrice float64
}

// Fill is a gateway execution report.
type Fill struct {
	OrderID int64
	ConID   int64
	Symbol  string
	Action  Action
	Qty     float64
	Price   float64
	CumQty  float64
	Time    time.Time
	ExecID  string
}

// CommissionReport arrives after each fill.
type CommissionReport struct {
	ExecID      string
	Commission  float64
	Currency    string
	RealizedPnL float64
}

// MarginEstimate is the gateway's what-if answer for a previewed order.
type MarginEstimate struct {
	InitMarginChange    float64
	MaintMarginChange   float64
	EquityWithLoanAfter float64
	InitMarginAfter     float64
	MinCommission       float64
	MaxCommission       float64
	Warning             string
}
