package quotes

import (
	"math"
	"sync"
	"time"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/pkg/logger"
)

// Tick is one gateway push update for a subscribed instrument.
type Tick struct {
	Key      string
	Bid      float64
	BidSize  float64
	Ask      float64
	AskSize  float64
	Last     float64
	LastSize float64
	Time     time.Time
}

// Quote is the live state of one subscription.
type Quote struct {
	Contract instrument.Contract
	Bid      float64
	BidSize  float64
	Ask      float64
	AskSize  float64
	Last     float64
	LastSize float64
	Time     time.Time
}

// Midpoint returns the plain bid/ask midpoint.
func (q Quote) Midpoint() float64 {
	return (q.Bid + q.Ask) / 2
}

// Usable reports whether the quote can back sizing or pricing decisions:
// at least one side must be a positive, non-NaN number.
func (q Quote) Usable() bool {
	bidOK := !math.IsNaN(q.Bid) && q.Bid > 0
	askOK := !math.IsNaN(q.Ask) && q.Ask > 0
	return bidOK || askOK
}

// Registry tracks exactly one live quote per subscription key.
type Registry struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
	logger *logger.Logger
}

// NewRegistry creates an empty quote registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		quotes: make(map[string]*Quote),
		logger: log,
	}
}

// Subscribe registers a quote slot for the contract and returns its key.
// Subscribing twice is a no-op: the existing key comes back with
// already=true and no second subscription is created. New slots start
// with NaN prices so an unpopulated quote never reads as usable.
func (r *Registry) Subscribe(c instrument.Contract) (key string, already bool) {
	key = c.QuoteKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.quotes[key]; ok {
		return key, true
	}

	r.quotes[key] = &Quote{
		Contract: c,
		Bid:      math.NaN(),
		Ask:      math.NaN(),
		Last:     math.NaN(),
	}
	r.logger.WithField("key", key).Debug("Quote subscription added")
	return key, false
}

// Apply merges a gateway tick into the live quote state. Ticks for
// unknown keys are dropped (a subscription race after an unsubscribe).
func (r *Registry) Apply(tick Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.quotes[tick.Key]
	if !ok {
		return
	}

	q.Bid = tick.Bid
	q.BidSize = tick.BidSize
	q.Ask = tick.Ask
	q.AskSize = tick.AskSize
	if !math.IsNaN(tick.Last) && tick.Last > 0 {
		q.Last = tick.Last
		q.LastSize = tick.LastSize
	}
	q.Time = tick.Time
}

// Quote returns the current bid/ask for key. ok is false when the key is
// unknown or the quote is not yet usable.
func (r *Registry) Quote(key string) (bid, ask float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, found := r.quotes[key]
	if !found || !q.Usable() {
		return 0, 0, false
	}
	return q.Bid, q.Ask, true
}

// Get returns the full quote state for key.
func (r *Registry) Get(key string) (Quote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.quotes[key]
	if !ok {
		return Quote{}, false
	}
	return *q, true
}

// Has reports whether key has an active subscription.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.quotes[key]
	return ok
}

// Remove drops the subscription for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.quotes, key)
	r.mu.Unlock()
}

// Keys returns all active subscription keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.quotes))
	for k := range r.quotes {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns the subscribed contracts, used to rebuild the
// registry after a reconnect.
func (r *Registry) Snapshot() []instrument.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contracts := make([]instrument.Contract, 0, len(r.quotes))
	for _, q := range r.quotes {
		contracts = append(contracts, q.Contract)
	}
	return contracts
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.quotes = make(map[string]*Quote)
	r.mu.Unlock()
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quotes)
}
