package instrument

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfields/tradeshell/pkg/logger"
	"github.com/mfields/tradeshell/pkg/redis"
)

// ErrUnqualified marks a contract the gateway could not resolve to a
// usable identity. A typo'd symbol still round-trips the gateway, it just
// comes back without an ID.
var ErrUnqualified = errors.New("contract did not qualify")

// Qualifier is the slice of the gateway the resolver needs.
type Qualifier interface {
	Qualify(ctx context.Context, contracts []Contract) ([]Contract, error)
}

// Result pairs one input contract with its resolution outcome.
type Result struct {
	Contract Contract
	Err      error
}

// Resolver qualifies raw symbol descriptors into fully specified
// contracts, using the durable Store to avoid redundant gateway round
// trips.
type Resolver struct {
	gw     Qualifier
	store  Store
	logger *logger.Logger
}

// NewResolver creates a resolver over the given gateway and cache.
func NewResolver(gw Qualifier, store Store, log *logger.Logger) *Resolver {
	return &Resolver{gw: gw, store: store, logger: log}
}

// Resolve qualifies every input contract, order-preserving: the returned
// slice has the same length and order as the input, with per-item
// failures reported in Result.Err rather than dropped. Cached entries are
// served without touching the gateway; only the remainder is qualified in
// one batch.
func (r *Resolver) Resolve(ctx context.Context, contracts []Contract) ([]Result, error) {
	results := make([]Result, len(contracts))

	// Partition into cached and uncached, remembering input positions so
	// the merge below restores input order.
	var uncached []Contract
	var uncachedIdx []int

	for i, c := range contracts {
		cached, ok := r.lookup(ctx, c)
		if ok {
			results[i] = Result{Contract: cached}
			continue
		}
		uncached = append(uncached, c)
		uncachedIdx = append(uncachedIdx, i)
	}

	if len(uncached) == 0 {
		return results, nil
	}

	resolved, err := r.gw.Qualify(ctx, uncached)
	if err != nil {
		return nil, fmt.Errorf("qualify %d contracts: %w", len(uncached), err)
	}

	for j, idx := range uncachedIdx {
		if j >= len(resolved) {
			results[idx] = Result{Contract: uncached[j], Err: fmt.Errorf("%s: %w", uncached[j].Symbol, ErrUnqualified)}
			continue
		}

		got := resolved[j]
		if !got.Qualified() {
			// Names with typos still "qualify" syntactically but carry no
			// usable identity. Report, never cache.
			r.logger.WithField("symbol", got.Symbol).Warn("Contract did not qualify")
			results[idx] = Result{Contract: got, Err: fmt.Errorf("%s: %w", got.Symbol, ErrUnqualified)}
			continue
		}

		r.cache(ctx, got)
		results[idx] = Result{Contract: got}
	}

	return results, nil
}

// ResolveOne is the single-contract convenience form.
func (r *Resolver) ResolveOne(ctx context.Context, c Contract) (Contract, error) {
	results, err := r.Resolve(ctx, []Contract{c})
	if err != nil {
		return Contract{}, err
	}
	return results[0].Contract, results[0].Err
}

// lookup checks the store under both key forms.
func (r *Resolver) lookup(ctx context.Context, c Contract) (Contract, bool) {
	if c.ID != 0 {
		if cached, ok, err := r.store.Get(ctx, redis.ContractIDKey(c.ID)); err == nil && ok {
			return r.withExchange(cached, c.Exchange), true
		}
	}

	local := c.LocalSymbol
	if local == "" {
		local = c.Symbol
	}
	if cached, ok, err := r.store.Get(ctx, redis.ContractSymbolKey(local, c.Symbol)); err == nil && ok {
		// A cached entry for the wrong class is not a hit.
		if cached.SecType == c.SecType {
			return r.withExchange(cached, c.Exchange), true
		}
	}

	return Contract{}, false
}

// cache stores a qualified contract under both key forms. The execution
// exchange only applies at trade time, so it is stripped before the
// write; the caller's in-memory copy keeps its exchange untouched.
func (r *Resolver) cache(ctx context.Context, c Contract) {
	c.Exchange = ""

	if err := r.store.Set(ctx, redis.ContractIDKey(c.ID), c, redis.TTLContract); err != nil {
		r.logger.WithError(err).WithField("symbol", c.Symbol).Warn("Contract cache write failed")
	}
	if err := r.store.Set(ctx, redis.ContractSymbolKey(c.LocalSymbol, c.Symbol), c, redis.TTLContract); err != nil {
		r.logger.WithError(err).WithField("symbol", c.Symbol).Warn("Contract cache write failed")
	}
}

// withExchange restores the caller's requested routing exchange on a
// cached contract (cached entries never carry one).
func (r *Resolver) withExchange(cached Contract, exchange string) Contract {
	if cached.Exchange == "" && exchange != "" {
		cached.Exchange = exchange
	}
	return cached
}
