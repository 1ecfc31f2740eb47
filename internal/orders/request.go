package orders

// Leg is one requested order leg as produced by the order request
// parser (an external collaborator). Qty uses a sentinel encoding: a
// negative value means "size to this absolute dollar amount at a derived
// price" rather than a unit quantity. Direction is always carried by
// Action, never by the sign of Qty.
type Leg struct {
	Symbol string
	Action Action

	// Ratio is the leg weight inside a spread. Single-leg requests use 1.
	Ratio int

	// Qty is the unit quantity, or a negative dollar budget.
	Qty float64

	// Price is the explicit limit price; zero asks for a derived price.
	Price float64
}

// DollarSized reports whether the leg uses the dollar-budget sentinel.
func (l Leg) DollarSized() bool {
	return l.Qty < 0
}

// Request is a parsed order request of one or more legs.
type Request struct {
	Legs []Leg
}

// IsSpread reports whether the request has multiple legs.
func (r Request) IsSpread() bool {
	return len(r.Legs) > 1
}

// IsSingle reports whether the request has exactly one leg.
func (r Request) IsSingle() bool {
	return len(r.Legs) == 1
}
