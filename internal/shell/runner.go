package shell

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sourcegraph/conc"

	"github.com/mfields/tradeshell/internal/gateway"
	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/journal"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
	"github.com/mfields/tradeshell/internal/session"
	"github.com/mfields/tradeshell/internal/sizing"
	"github.com/mfields/tradeshell/pkg/config"
	"github.com/mfields/tradeshell/pkg/logger"
)

// ErrExit is returned by RunLine when an exit command ran.
var ErrExit = errors.New("exit requested")

// Deps is everything an operation may touch. Runner fills in its own
// back-pointer so operations can schedule further command lines.
type Deps struct {
	Cfg       *config.Config
	GW        gateway.Gateway
	Resolver  *instrument.Resolver
	Quotes    *quotes.Registry
	Sizer     *sizing.Sizer
	Assembler *orders.Assembler
	Sess      *session.Session
	Jrnl      *journal.Journal
	Sched     *Scheduler
	Out       io.Writer
	Log       *logger.Logger

	Runner *Runner
}

// OpFunc is one shell operation.
type OpFunc func(ctx context.Context, d *Deps, args []string) error

// Registry maps command names (and aliases) to operations.
type Registry struct {
	ops map[string]OpFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]OpFunc)}
}

// Register binds op under every given name.
func (r *Registry) Register(op OpFunc, names ...string) {
	for _, name := range names {
		r.ops[name] = op
	}
}

// Lookup returns the operation bound to name.
func (r *Registry) Lookup(name string) (OpFunc, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Names returns every registered name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	return names
}

// Runner executes parsed command units against the registry.
type Runner struct {
	reg  *Registry
	deps *Deps
	log  *logger.Logger
}

// NewRunner wires a runner over deps. The deps gain a back-pointer to
// the runner so operations (the scheduler) can replay command lines.
func NewRunner(reg *Registry, deps *Deps) *Runner {
	r := &Runner{reg: reg, deps: deps, log: deps.Log}
	deps.Runner = r
	return r
}

// RunLine parses and executes one input line. Units run in order;
// commands inside a concurrent unit run simultaneously and their
// failures are isolated from each other. Command errors are reported
// and execution continues; only an exit command stops the line.
func (r *Runner) RunLine(ctx context.Context, raw string) error {
	for _, unit := range Parse(raw) {
		if unit.Concurrent {
			var wg conc.WaitGroup
			for _, cmd := range unit.Commands {
				cmd := cmd
				wg.Go(func() {
					if err := r.runOne(ctx, cmd); err != nil && !errors.Is(err, ErrExit) {
						r.report(cmd, err)
					}
				})
			}
			// A member panic must not escape into the caller's loop.
			if p := wg.WaitAndRecover(); p != nil {
				r.log.WithField("panic", p.Value).Error("Command panicked")
				fmt.Fprintf(r.deps.Out, "error: panic: %v\n", p.Value)
			}
			continue
		}

		cmd := unit.Commands[0]
		if err := r.runOne(ctx, cmd); err != nil {
			if errors.Is(err, ErrExit) {
				return ErrExit
			}
			r.report(cmd, err)
		}
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, cmd Command) error {
	op, ok := r.reg.Lookup(cmd.Name)
	if !ok {
		return fmt.Errorf("unknown command %q", cmd.Name)
	}
	return op(ctx, r.deps, cmd.Args)
}

func (r *Runner) report(cmd Command, err error) {
	r.log.WithError(err).WithField("command", cmd.Raw()).Warn("Command failed")
	fmt.Fprintf(r.deps.Out, "error: %s: %v\n", cmd.Raw(), err)
}
