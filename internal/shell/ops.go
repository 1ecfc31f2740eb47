package shell

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
)

// DefaultRegistry returns the registry with every built-in operation.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(opHelp, "help", "?")
	r.Register(opAdd, "add", "sub")
	r.Register(opRemove, "rm", "unsub")
	r.Register(opQuote, "quote", "q")
	r.Register(opBuy, "buy")
	r.Register(opSell, "sell")
	r.Register(opSpread, "spread")
	r.Register(opBracket, "bracket")
	r.Register(opPreview, "preview")
	r.Register(opOrders, "orders")
	r.Register(opPositions, "positions", "pos")
	r.Register(opCancel, "cancel")
	r.Register(opBalance, "balance", "bal")
	r.Register(opPnL, "pnl")
	r.Register(opNews, "news")
	r.Register(opSched, "sched")
	r.Register(opUnsched, "unsched")
	r.Register(opScheds, "scheds")
	r.Register(opExit, "exit", "quit")
	return r
}

func opHelp(_ context.Context, d *Deps, _ []string) error {
	names := d.Runner.reg.Names()
	sort.Strings(names)
	fmt.Fprintf(d.Out, "commands: %s\n", strings.Join(names, " "))
	return nil
}

// opAdd subscribes live quotes for each symbol.
func opAdd(ctx context.Context, d *Deps, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: add SYMBOL...")
	}
	for _, sym := range args {
		c, err := d.Resolver.ResolveOne(ctx, instrument.FromSymbol(sym, "SMART", "USD"))
		if err != nil {
			return fmt.Errorf("add %s: %w", sym, err)
		}
		key, already := d.Quotes.Subscribe(c)
		if already {
			continue
		}
		if err := d.GW.SubscribeQuote(ctx, c); err != nil {
			d.Quotes.Remove(key)
			return fmt.Errorf("add %s: %w", sym, err)
		}
		fmt.Fprintf(d.Out, "added %s\n", key)
	}
	return nil
}

// opRemove drops quote subscriptions.
func opRemove(ctx context.Context, d *Deps, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rm SYMBOL...")
	}
	for _, sym := range args {
		key := instrument.FromSymbol(sym, "", "").QuoteKey()
		q, ok := d.Quotes.Get(key)
		if !ok {
			return fmt.Errorf("rm %s: not subscribed", sym)
		}
		if err := d.GW.UnsubscribeQuote(ctx, q.Contract); err != nil {
			return fmt.Errorf("rm %s: %w", sym, err)
		}
		d.Quotes.Remove(key)
		fmt.Fprintf(d.Out, "removed %s\n", key)
	}
	return nil
}

// opQuote prints current quotes, all of them without arguments.
func opQuote(_ context.Context, d *Deps, args []string) error {
	keys := args
	if len(keys) == 0 {
		keys = d.Quotes.Keys()
		sort.Strings(keys)
	}
	for _, raw := range keys {
		key := instrument.FromSymbol(raw, "", "").QuoteKey()
		q, ok := d.Quotes.Get(key)
		if !ok {
			fmt.Fprintf(d.Out, "%-12s (not subscribed)\n", key)
			continue
		}
		fmt.Fprintf(d.Out, "%-12s bid %s x ask %s  last %s\n",
			key, fmtPrice(q.Bid), fmtPrice(q.Ask), fmtPrice(q.Last))
	}
	return nil
}

func fmtPrice(p float64) string {
	if math.IsNaN(p) {
		return "-"
	}
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func opBuy(ctx context.Context, d *Deps, args []string) error {
	return placeSingle(ctx, d, orders.ActionBuy, args)
}

func opSell(ctx context.Context, d *Deps, args []string) error {
	return placeSingle(ctx, d, orders.ActionSell, args)
}

// placeSingle resolves, sizes, and submits one limit order:
// buy SYMBOL QTY [PRICE]. A negative quantity is a dollar budget sized
// at the derived price.
func placeSingle(ctx context.Context, d *Deps, action orders.Action, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s SYMBOL QTY [PRICE]", strings.ToLower(string(action)))
	}
	sym := args[0]
	qty, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad quantity %q", args[1])
	}
	var price float64
	if len(args) > 2 {
		if price, err = strconv.ParseFloat(args[2], 64); err != nil {
			return fmt.Errorf("bad price %q", args[2])
		}
	}

	c, err := d.Resolver.ResolveOne(ctx, instrument.FromSymbol(sym, "SMART", "USD"))
	if err != nil {
		return err
	}

	sized, err := d.Sizer.Derive(ctx, c, action, qty, price)
	if err != nil {
		return err
	}

	order := orders.Order{
		ID:         d.GW.NextOrderID(),
		Action:     action,
		Type:       orders.TypeLimit,
		Qty:        sized.Qty,
		LmtPrice:   sized.Price,
		TIF:        orders.TIFFor(c, action),
		OutsideRTH: true,
		Transmit:   true,
	}

	tr, err := d.GW.PlaceOrder(ctx, c, order)
	if err != nil {
		return err
	}
	d.Sess.TrackTrade(tr)
	if err := d.Jrnl.RecordOrder(ctx, d.Sess.Account(), tr); err != nil {
		d.Log.WithError(err).Warn("Journal order failed")
	}

	fmt.Fprintf(d.Out, "%s %v %s @ %s (order %d)\n",
		order.Action, order.Qty, c.DisplayName(), fmtPrice(order.LmtPrice), order.ID)
	return nil
}

// opSpread assembles and submits a multi-leg combo:
// spread QTY PRICE ACTION:SYMBOL[:RATIO]...
func opSpread(ctx context.Context, d *Deps, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: spread QTY PRICE ACTION:SYMBOL[:RATIO]...")
	}
	qty, err := strconv.ParseFloat(args[0], 64)
	if err != nil || qty <= 0 {
		return fmt.Errorf("bad quantity %q", args[0])
	}
	price, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad price %q", args[1])
	}

	legs := make([]orders.Leg, 0, len(args)-2)
	for _, spec := range args[2:] {
		leg, err := parseLegSpec(spec)
		if err != nil {
			return err
		}
		legs = append(legs, leg)
	}

	combo, err := d.Assembler.Assemble(ctx, legs, "SMART", "USD")
	if err != nil {
		return err
	}

	// Net debit is a buy of the combo; net credit flips the action
	// instead of carrying a negative price.
	action := orders.ActionBuy
	if price < 0 {
		action = orders.ActionSell
		price = -price
	}

	order := orders.Order{
		ID:         d.GW.NextOrderID(),
		Action:     action,
		Type:       orders.TypeLimit,
		Qty:        qty,
		LmtPrice:   instrument.ComplyPrice(combo, price),
		TIF:        orders.TIFGoodTillCancel,
		OutsideRTH: true,
		Transmit:   true,
	}

	tr, err := d.GW.PlaceOrder(ctx, combo, order)
	if err != nil {
		return err
	}
	d.Sess.TrackTrade(tr)
	if err := d.Jrnl.RecordOrder(ctx, d.Sess.Account(), tr); err != nil {
		d.Log.WithError(err).Warn("Journal order failed")
	}

	fmt.Fprintf(d.Out, "%s %v %s @ %s (order %d)\n",
		order.Action, order.Qty, combo.DisplayName(), fmtPrice(order.LmtPrice), order.ID)
	return nil
}

func parseLegSpec(spec string) (orders.Leg, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return orders.Leg{}, fmt.Errorf("bad leg %q, want ACTION:SYMBOL[:RATIO]", spec)
	}

	var action orders.Action
	switch strings.ToLower(parts[0]) {
	case "buy", "b":
		action = orders.ActionBuy
	case "sell", "s":
		action = orders.ActionSell
	default:
		return orders.Leg{}, fmt.Errorf("bad leg action %q", parts[0])
	}

	ratio := 1
	if len(parts) == 3 {
		r, err := strconv.Atoi(parts[2])
		if err != nil || r <= 0 {
			return orders.Leg{}, fmt.Errorf("bad leg ratio %q", parts[2])
		}
		ratio = r
	}

	return orders.Leg{Symbol: parts[1], Action: action, Ratio: ratio}, nil
}

// opBracket submits a bracket entry: bracket SYMBOL QTY PCT [sell].
// PCT is the percent-difference band (1 = 1%) framing the stop and the
// trailing profit leg.
func opBracket(ctx context.Context, d *Deps, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: bracket SYMBOL QTY PCT [sell]")
	}
	sym := args[0]
	qty, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("bad quantity %q", args[1])
	}
	pct, err := strconv.ParseFloat(args[2], 64)
	if err != nil || pct <= 0 {
		return fmt.Errorf("bad percent %q", args[2])
	}
	action := orders.ActionBuy
	if len(args) > 3 && strings.EqualFold(args[3], "sell") {
		action = orders.ActionSell
	}

	c, err := d.Resolver.ResolveOne(ctx, instrument.FromSymbol(sym, "SMART", "USD"))
	if err != nil {
		return err
	}

	q, err := waitQuote(ctx, d, c)
	if err != nil {
		return err
	}
	ask := q.Ask
	if math.IsNaN(ask) || ask <= 0 {
		return fmt.Errorf("bracket %s: no ask price", sym)
	}

	if qty < 0 {
		sized, err := d.Sizer.Derive(ctx, c, action, qty, ask)
		if err != nil {
			return err
		}
		qty = sized.Qty
	}

	bcfg := orders.BracketConfig{SubmitStop: d.Cfg.Bracket.SubmitStop}
	bracket, err := orders.BuildBracket(bcfg, d.GW, c, action, qty, ask, pct/100)
	if err != nil {
		return err
	}

	for _, o := range bracket.Orders() {
		tr, err := d.GW.PlaceOrder(ctx, c, o)
		if err != nil {
			return fmt.Errorf("bracket leg %d: %w", o.ID, err)
		}
		d.Sess.TrackTrade(tr)
		if err := d.Jrnl.RecordOrder(ctx, d.Sess.Account(), tr); err != nil {
			d.Log.WithError(err).Warn("Journal order failed")
		}
	}

	fmt.Fprintf(d.Out, "bracket %s %s: entry %s profit trails %s stop %s (stop %s)\n",
		bracket.Parent.Action, c.DisplayName(),
		fmtPrice(bracket.Parent.LmtPrice), fmtPrice(bracket.Profit.AuxPrice),
		fmtPrice(bracket.Stop.AuxPrice), submittedOrWithheld(bracket.SubmitStop))
	return nil
}

func submittedOrWithheld(submitted bool) string {
	if submitted {
		return "submitted"
	}
	return "withheld"
}

// waitQuote subscribes if needed and polls until the quote is usable,
// bounded by the configured sizing wait.
func waitQuote(ctx context.Context, d *Deps, c instrument.Contract) (quotes.Quote, error) {
	key, already := d.Quotes.Subscribe(c)
	if !already {
		if err := d.GW.SubscribeQuote(ctx, c); err != nil {
			return quotes.Quote{}, err
		}
	}

	attempts := d.Cfg.Sizing.QuoteWaitAttempts
	interval := d.Cfg.Sizing.QuoteWaitInterval
	for i := 0; i < attempts; i++ {
		if q, ok := d.Quotes.Get(key); ok && q.Usable() {
			return q, nil
		}
		select {
		case <-ctx.Done():
			return quotes.Quote{}, ctx.Err()
		case <-time.After(interval):
		}
	}
	return quotes.Quote{}, fmt.Errorf("no quote for %s", key)
}

// opPreview asks the gateway for margin impact without placing:
// preview SYMBOL QTY PRICE [sell]
func opPreview(ctx context.Context, d *Deps, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: preview SYMBOL QTY PRICE [sell]")
	}
	qty, err := strconv.ParseFloat(args[1], 64)
	if err != nil || qty <= 0 {
		return fmt.Errorf("bad quantity %q", args[1])
	}
	price, err := strconv.ParseFloat(args[2], 64)
	if err != nil || price <= 0 {
		return fmt.Errorf("bad price %q", args[2])
	}
	action := orders.ActionBuy
	if len(args) > 3 && strings.EqualFold(args[3], "sell") {
		action = orders.ActionSell
	}

	c, err := d.Resolver.ResolveOne(ctx, instrument.FromSymbol(args[0], "SMART", "USD"))
	if err != nil {
		return err
	}

	order := orders.Order{
		Action:   action,
		Type:     orders.TypeLimit,
		Qty:      qty,
		LmtPrice: instrument.ComplyPrice(c, price),
		TIF:      orders.TIFFor(c, action),
	}

	m, err := d.GW.PreviewOrder(ctx, c, order)
	if err != nil {
		return err
	}

	fmt.Fprintf(d.Out, "%s %v %s @ %s\n", action, qty, c.DisplayName(), fmtPrice(order.LmtPrice))
	fmt.Fprintf(d.Out, "  init margin change:  %.2f\n", m.InitMarginChange)
	fmt.Fprintf(d.Out, "  maint margin change: %.2f\n", m.MaintMarginChange)
	fmt.Fprintf(d.Out, "  commission:          %.2f - %.2f\n", m.MinCommission, m.MaxCommission)
	if m.Warning != "" {
		fmt.Fprintf(d.Out, "  warning: %s\n", m.Warning)
	}
	return nil
}

func opOrders(_ context.Context, d *Deps, _ []string) error {
	open := d.Sess.OpenTrades()
	if len(open) == 0 {
		fmt.Fprintln(d.Out, "no open orders")
		return nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Order.ID < open[j].Order.ID })
	for _, tr := range open {
		fmt.Fprintf(d.Out, "%6d  %-4s %10v %-12s %-10s filled %v/%v\n",
			tr.Order.ID, tr.Order.Action, tr.Order.Qty, tr.Contract.DisplayName(),
			tr.Status, tr.Filled, tr.Order.Qty)
	}
	return nil
}

func opPositions(ctx context.Context, d *Deps, _ []string) error {
	positions, err := d.GW.Positions(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Fprintln(d.Out, "no positions")
		return nil
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Contract.DisplayName() < positions[j].Contract.DisplayName()
	})
	for _, p := range positions {
		fmt.Fprintf(d.Out, "%-12s %10v @ %s\n",
			p.Contract.DisplayName(), p.Qty, fmtPrice(p.AvgCost))
	}
	return nil
}

// opCancel cancels orders by id, or every open order with "all".
func opCancel(ctx context.Context, d *Deps, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cancel ID...|all")
	}

	var ids []int64
	if strings.EqualFold(args[0], "all") {
		for _, tr := range d.Sess.OpenTrades() {
			ids = append(ids, tr.Order.ID)
		}
	} else {
		for _, raw := range args {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("bad order id %q", raw)
			}
			ids = append(ids, id)
		}
	}

	for _, id := range ids {
		if err := d.GW.CancelOrder(ctx, id); err != nil {
			return fmt.Errorf("cancel %d: %w", id, err)
		}
		fmt.Fprintf(d.Out, "cancel requested for order %d\n", id)
	}
	return nil
}

// balanceTags are the summary rows worth showing, in display order.
var balanceTags = []string{
	"AccountType", "NetLiquidation", "TotalCashValue", "BuyingPower",
	"AvailableFunds", "ExcessLiquidity", "GrossPositionValue",
}

func opBalance(ctx context.Context, d *Deps, _ []string) error {
	if err := d.GW.RequestAccountSummary(ctx); err != nil {
		return err
	}
	summary := d.Sess.Summary()
	if len(summary) == 0 {
		fmt.Fprintln(d.Out, "account summary not yet received")
		return nil
	}
	fmt.Fprintf(d.Out, "account %s\n", d.Sess.Account())
	for _, tag := range balanceTags {
		if v, ok := summary[tag]; ok {
			fmt.Fprintf(d.Out, "  %-20s %s %s\n", tag, v.Value, v.Currency)
		}
	}
	return nil
}

func opPnL(ctx context.Context, d *Deps, _ []string) error {
	if acct := d.Sess.Account(); acct != "" {
		if err := d.GW.RequestPnL(ctx, acct); err != nil {
			return err
		}
	}
	p := d.Sess.PnL()
	fmt.Fprintf(d.Out, "daily %.2f  unrealized %.2f  realized %.2f\n",
		p.Daily, p.Unrealized, p.Realized)
	return nil
}

func opNews(ctx context.Context, d *Deps, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: news on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return d.GW.SubscribeNews(ctx, true)
	case "off":
		return d.GW.SubscribeNews(ctx, false)
	default:
		return fmt.Errorf("usage: news on|off")
	}
}

// opSched registers a command line on a cron schedule:
// sched ID MIN HOUR DOM MON DOW COMMAND...
func opSched(_ context.Context, d *Deps, args []string) error {
	if len(args) < 7 {
		return fmt.Errorf("usage: sched ID MIN HOUR DOM MON DOW COMMAND...")
	}
	id := args[0]
	spec := strings.Join(args[1:6], " ")
	command := strings.Join(args[6:], " ")

	err := d.Sched.Add(id, spec, command, func() {
		if err := d.Runner.RunLine(context.Background(), command); err != nil && err != ErrExit {
			d.Log.WithError(err).WithField("schedule", id).Warn("Scheduled command failed")
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(d.Out, "scheduled %q: [%s] %s\n", id, spec, command)
	return nil
}

func opUnsched(_ context.Context, d *Deps, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: unsched ID")
	}
	if err := d.Sched.Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(d.Out, "unscheduled %q\n", args[0])
	return nil
}

func opScheds(_ context.Context, d *Deps, _ []string) error {
	entries := d.Sched.List()
	if len(entries) == 0 {
		fmt.Fprintln(d.Out, "no schedules")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(d.Out, "%-12s [%s] %s\n", e.ID, e.Spec, e.Command)
	}
	return nil
}

func opExit(_ context.Context, d *Deps, _ []string) error {
	d.Sess.BeginExit()
	fmt.Fprintln(d.Out, "bye")
	return ErrExit
}
