package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfields/tradeshell/internal/gateway"
	"github.com/mfields/tradeshell/internal/instrument"
	"github.com/mfields/tradeshell/internal/journal"
	"github.com/mfields/tradeshell/internal/orders"
	"github.com/mfields/tradeshell/internal/quotes"
	"github.com/mfields/tradeshell/internal/session"
	"github.com/mfields/tradeshell/internal/shell"
	"github.com/mfields/tradeshell/internal/sizing"
	"github.com/mfields/tradeshell/pkg/config"
	"github.com/mfields/tradeshell/pkg/database"
	"github.com/mfields/tradeshell/pkg/logger"
	"github.com/mfields/tradeshell/pkg/redis"
)

// replCmd runs the interactive terminal loop.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive trading terminal",
	Long: `Starts the terminal: connects to the brokerage gateway, re-arms
subscriptions on reconnect, and reads command lines from stdin until
"exit" or end of input.

Example:
  tradeshell repl
  tradeshell repl --paper`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if paper {
		cfg.Gateway.Paper = true
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Instrument cache: redis-backed when available, in-memory otherwise.
	var store instrument.Store = instrument.NewMemoryStore()
	rdb, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, instrument cache is in-memory only")
	} else if rdb.Enabled() {
		store = instrument.NewRedisStore(redis.NewCache(rdb, "tradeshell"))
		defer rdb.Close()
	}

	// Order journal is optional.
	var jrnl *journal.Journal
	if cfg.Database.URL != "" {
		db, err := database.New(cfg)
		if err != nil {
			log.WithError(err).Warn("Journal database unavailable, orders will not be persisted")
		} else {
			jrnl = journal.New(db.Pool, log)
			defer db.Close()
		}
	}

	var gw gateway.Gateway
	if cfg.Gateway.Paper {
		log.Info("Paper mode: using simulated gateway")
		gw = gateway.NewSim("DU0000000")
	} else {
		gw = gateway.NewWS(cfg.Gateway, log)
	}

	resolver := instrument.NewResolver(gw, store, log)
	reg := quotes.NewRegistry(log)
	sess := session.New(cfg.Gateway.AccountID)

	watchlist, err := cfg.LoadWatchlist()
	if err != nil {
		return err
	}

	sup := session.NewSupervisor(cfg.Gateway, gw, resolver, reg, sess, jrnl, watchlist.Symbols, log)
	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(ctx) }()

	sched := shell.NewScheduler(log)
	defer sched.Stop()

	deps := &shell.Deps{
		Cfg:       cfg,
		GW:        gw,
		Resolver:  resolver,
		Quotes:    reg,
		Sizer:     sizing.New(reg, gw, cfg.Sizing.QuoteWaitInterval, cfg.Sizing.QuoteWaitAttempts, cfg.Sizing.MidpointBias),
		Assembler: orders.NewAssembler(resolver, log),
		Sess:      sess,
		Jrnl:      jrnl,
		Sched:     sched,
		Out:       os.Stdout,
		Log:       log,
	}
	runner := shell.NewRunner(shell.DefaultRegistry(), deps)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if err := runner.RunLine(ctx, scanner.Text()); err != nil {
			if errors.Is(err, shell.ErrExit) {
				break
			}
			return err
		}
		select {
		case <-ctx.Done():
			sess.BeginExit()
		default:
		}
		if sess.Exiting() {
			break
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	sess.BeginExit()
	stop()
	if err := gw.Close(); err != nil {
		log.WithError(err).Warn("Gateway close failed")
	}
	<-supDone
	return nil
}
