package instrument

import (
	"fmt"
	"sort"
	"strings"
)

// SecType is the closed set of instrument classes the terminal trades.
type SecType string

const (
	SecTypeEquity SecType = "STK"
	SecTypeOption SecType = "OPT"
	SecTypeFuture SecType = "FUT"
	SecTypeCrypto SecType = "CRYPTO"
	SecTypeIndex  SecType = "IND"
	SecTypeCombo  SecType = "BAG"
)

// Fractional reports whether the class supports fractional order
// quantities. Only crypto does over the gateway API; everything else is
// floored to whole units.
func (s SecType) Fractional() bool {
	return s == SecTypeCrypto
}

// MultiplierInCost reports whether the contract multiplier is part of the
// purchase cost. Option premiums are quoted per unit but billed per full
// contract value; futures cost margin, not notional, so their multiplier
// is excluded from sizing math.
func (s SecType) MultiplierInCost() bool {
	return s == SecTypeOption
}

// WidenMidpoint reports whether dollar-amount sizing biases the midpoint
// in the entry direction for faster fills. Options keep the plain
// midpoint because their spreads are already wide.
func (s SecType) WidenMidpoint() bool {
	return s != SecTypeOption
}

// ComboLeg references another instrument's identity inside a combination
// contract, with a per-leg ratio and direction.
type ComboLeg struct {
	ConID    int64  `json:"con_id"`
	Ratio    int    `json:"ratio"`
	Action   string `json:"action"` // BUY or SELL
	Exchange string `json:"exchange"`
}

// Contract is a tradable instrument descriptor. A contract is qualified
// once the gateway has assigned it a non-zero ID; unqualified contracts
// must never be used to place orders. Combination contracts are the one
// exception: they carry no ID of their own and are identified by
// SecTypeCombo instead.
type Contract struct {
	ID          int64   `json:"id"`
	Symbol      string  `json:"symbol"`
	LocalSymbol string  `json:"local_symbol"`
	SecType     SecType `json:"sec_type"`
	Multiplier  float64 `json:"multiplier,omitempty"`
	Currency    string  `json:"currency"`

	// Exchange is the execution routing venue. It is transient: only the
	// resolution-time exchange is meaningful and it is never persisted to
	// the instrument cache.
	Exchange string `json:"exchange,omitempty"`

	TradingClass  string `json:"trading_class,omitempty"`
	LastTradeDate string `json:"last_trade_date,omitempty"`

	// Option fields
	Strike float64 `json:"strike,omitempty"`
	Right  string  `json:"right,omitempty"` // C or P

	// Combination legs (SecTypeCombo only)
	ComboLegs []ComboLeg `json:"combo_legs,omitempty"`
}

// Qualified reports whether the gateway has resolved this contract.
func (c Contract) Qualified() bool {
	return c.ID != 0
}

// IsCombo reports whether this is a multi-leg combination contract.
func (c Contract) IsCombo() bool {
	return c.SecType == SecTypeCombo
}

// EffectiveMultiplier returns the contract multiplier, defaulting to 1.
func (c Contract) EffectiveMultiplier() float64 {
	if c.Multiplier > 0 {
		return c.Multiplier
	}
	return 1
}

// DisplayName returns the most specific symbol we have for log lines.
func (c Contract) DisplayName() string {
	if c.LocalSymbol != "" {
		return strings.ReplaceAll(c.LocalSymbol, " ", "")
	}
	return c.Symbol
}

// QuoteKey derives the subscription key for this contract: the local
// symbol with spaces stripped (OCC-style option symbols carry padding),
// falling back to the base symbol. Combination contracts get a synthetic
// key built from their sorted leg identities so the same spread always
// maps to the same subscription.
func (c Contract) QuoteKey() string {
	if c.IsCombo() {
		ids := make([]string, 0, len(c.ComboLegs))
		for _, leg := range c.ComboLegs {
			ids = append(ids, fmt.Sprintf("%s%d*%d", leg.Action[:1], leg.ConID, leg.Ratio))
		}
		sort.Strings(ids)
		return c.Symbol + "{" + strings.Join(ids, ",") + "}"
	}

	if c.LocalSymbol != "" {
		return strings.ReplaceAll(c.LocalSymbol, " ", "")
	}
	return c.Symbol
}

// Equity returns an unqualified equity contract for sym.
func Equity(sym, exchange, currency string) Contract {
	return Contract{
		Symbol:   strings.ToUpper(sym),
		SecType:  SecTypeEquity,
		Exchange: exchange,
		Currency: currency,
	}
}

// Crypto returns an unqualified crypto contract for sym.
func Crypto(sym, exchange, currency string) Contract {
	return Contract{
		Symbol:   strings.ToUpper(sym),
		SecType:  SecTypeCrypto,
		Exchange: exchange,
		Currency: currency,
	}
}
