package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mfields/tradeshell/internal/gateway"
	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/journal"
	"github.com/mfields/tradeshell/internal/news"
	"github.com/mfields/tradeshell/internal/quotes"
	"github.com/mfields/tradeshell/pkg/config"
	"github.com/mfields/tradeshell/pkg/logger"
)

// Supervisor keeps the gateway session alive: it connects, re-arms
// account and quote subscriptions after every (re)connect, and folds the
// gateway's push events into the session and quote registry. Event
// consumers are wired exactly once; reconnects never double-register
// them.
type Supervisor struct {
	cfg      config.GatewayConfig
	gw       gateway.Gateway
	resolver *instrument.Resolver
	quotes   *quotes.Registry
	sess     *Session
	jrnl     *journal.Journal
	logger   *logger.Logger

	// watchlist symbols re-subscribed on every connect
	watchlist []string
}

// NewSupervisor wires the supervisor. jrnl may be nil.
func NewSupervisor(
	cfg config.GatewayConfig,
	gw gateway.Gateway,
	resolver *instrument.Resolver,
	reg *quotes.Registry,
	sess *Session,
	jrnl *journal.Journal,
	watchlist []string,
	log *logger.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		gw:        gw,
		resolver:  resolver,
		quotes:    reg,
		sess:      sess,
		jrnl:      jrnl,
		watchlist: watchlist,
		logger:    log,
	}
}

// Run drives the connection until ctx is cancelled or the session begins
// exiting. Every connection loss, transient or not, is retried after the
// configured fixed delay.
func (s *Supervisor) Run(ctx context.Context) error {
	go s.consumeEvents(ctx)

	for {
		if s.sess.Exiting() {
			return nil
		}
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		default:
		}

		s.sess.setState(StateConnecting)
		if err := s.connect(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.shutdown()
				return err
			}
			// Only an exit request or cancellation ends the loop; any
			// other connect failure is retried indefinitely.
			s.logger.WithError(err).Error("Gateway connect failed, retrying")
			select {
			case <-ctx.Done():
				s.shutdown()
				return ctx.Err()
			case <-time.After(s.reconnectDelay()):
			}
			continue
		}
		if s.sess.Exiting() {
			return nil
		}
		s.sess.setState(StateConnected)

		if err := s.arm(ctx); err != nil {
			s.logger.WithError(err).Warn("Post-connect setup incomplete")
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case err := <-s.gw.Disconnects():
			if s.sess.Exiting() {
				return nil
			}
			s.sess.setState(StateDisconnected)
			if isTransient(err) {
				s.logger.WithError(err).Warn("Gateway connection lost, reconnecting")
			} else {
				s.logger.WithError(err).Error("Unexpected gateway disconnect, reconnecting")
			}

			select {
			case <-ctx.Done():
				s.shutdown()
				return ctx.Err()
			case <-time.After(s.reconnectDelay()):
			}
		}
	}
}

// connect retries the dial at a fixed interval until it succeeds or the
// context ends.
func (s *Supervisor) connect(ctx context.Context) error {
	attempt := 0
	op := func() (struct{}, error) {
		if s.sess.Exiting() {
			return struct{}{}, backoff.Permanent(errSessionExiting)
		}
		attempt++
		if err := s.gw.Connect(ctx); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Gateway connect attempt failed")
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	// MaxElapsedTime zero disables the retry deadline: the dial is
	// attempted until it succeeds, the context ends, or exit begins.
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.reconnectDelay())),
		backoff.WithMaxElapsedTime(0),
	)
	if errors.Is(err, errSessionExiting) {
		return nil
	}
	return err
}

var errSessionExiting = errors.New("session exiting")

func (s *Supervisor) reconnectDelay() time.Duration {
	if s.cfg.ReconnectDelay > 0 {
		return s.cfg.ReconnectDelay
	}
	return 3 * time.Second
}

// arm re-issues everything a fresh connection needs: account streams,
// news, and one quote subscription per previously subscribed contract.
// Session caches are dropped first so values from the previous
// connection never read as current.
func (s *Supervisor) arm(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.sess.ResetCaches()

	keep(s.gw.RequestAccountSummary(ctx))
	if acct := s.sess.Account(); acct != "" {
		keep(s.gw.RequestPnL(ctx, acct))
	}
	keep(s.gw.SubscribeNews(ctx, true))
	keep(s.resubscribe(ctx))
	return firstErr
}

// resubscribe rebuilds quote subscriptions from the registry snapshot
// plus the watchlist. Contracts are re-resolved so a reconnect under a
// fresh gateway session still carries qualified ids.
func (s *Supervisor) resubscribe(ctx context.Context) error {
	wanted := s.quotes.Snapshot()
	for _, sym := range s.watchlist {
		wanted = append(wanted, instrument.FromSymbol(sym, "SMART", "USD"))
	}
	if len(wanted) == 0 {
		return nil
	}

	s.quotes.Clear()

	results, err := s.resolver.Resolve(ctx, wanted)
	if err != nil {
		return err
	}

	var firstErr error
	for _, res := range results {
		if res.Err != nil {
			s.logger.WithError(res.Err).WithField("symbol", res.Contract.Symbol).
				Warn("Dropping unresolvable subscription")
			continue
		}
		if _, already := s.quotes.Subscribe(res.Contract); already {
			continue
		}
		if err := s.gw.SubscribeQuote(ctx, res.Contract); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.WithError(err).WithField("key", res.Contract.QuoteKey()).
				Warn("Quote resubscribe failed")
		}
	}

	s.logger.WithField("count", s.quotes.Len()).Info("Quote subscriptions re-armed")
	return firstErr
}

func (s *Supervisor) shutdown() {
	s.sess.BeginExit()
	if err := s.gw.Close(); err != nil {
		s.logger.WithError(err).Warn("Gateway close failed")
	}
}

// consumeEvents is the single goroutine folding gateway pushes into
// session state. It runs for the life of the supervisor; channels stay
// valid across reconnects.
func (s *Supervisor) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case t := <-s.gw.Ticks():
			s.quotes.Apply(t)

		case v := <-s.gw.AccountValues():
			before := s.sess.Sandbox()
			s.sess.ApplyAccountValue(v)
			if after := s.sess.Sandbox(); before == SandboxUnknown && after != SandboxUnknown {
				s.logger.WithFields(map[string]interface{}{
					"account": s.sess.Account(),
					"paper":   after == SandboxPaper,
				}).Info("Account identified")
			}

		case p := <-s.gw.PnL():
			s.sess.ApplyPnL(p)

		case p := <-s.gw.PnLSingle():
			s.sess.ApplyPnLSingle(p)

		case u := <-s.gw.OrderStatus():
			s.sess.ApplyStatus(u)
			if err := s.jrnl.UpdateStatus(ctx, u); err != nil {
				s.logger.WithError(err).Warn("Journal status update failed")
			}

		case f := <-s.gw.Fills():
			s.logger.WithFields(map[string]interface{}{
				"order_id": f.OrderID,
				"symbol":   f.Symbol,
				"qty":      f.Qty,
				"price":    f.Price,
			}).Info("Fill")
			if err := s.jrnl.RecordFill(ctx, s.sess.Account(), f); err != nil {
				s.logger.WithError(err).Warn("Journal fill failed")
			}

		case c := <-s.gw.Commissions():
			if err := s.jrnl.RecordCommission(ctx, c); err != nil {
				s.logger.WithError(err).Warn("Journal commission failed")
			}

		case e := <-s.gw.Errors():
			fields := map[string]interface{}{"code": e.Code}
			if e.OrderID > 0 {
				fields["order_id"] = e.OrderID
			}
			s.logger.WithFields(fields).Warn(e.Message)

		case n := <-s.gw.News():
			s.logger.WithFields(map[string]interface{}{
				"origin": n.Origin,
			}).Info(news.ReadableHTML(n.Message))
		}
	}
}

// isTransient classifies a disconnect cause. Timeouts and refused or
// reset connections are routine gateway restarts; anything else is
// unexpected. Both are retried.
func isTransient(err error) bool {
	if err == nil {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF")
}
