package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	paper   bool
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tradeshell",
	Short: "Interactive brokerage trading terminal",
	Long: `tradeshell - interactive trading terminal

Connects to a brokerage gateway, keeps quote subscriptions and account
state alive across reconnects, and executes trading commands typed at a
prompt or piped on stdin.

Usage:
  go run ./cmd/tradeshell repl

Examples:
  tradeshell repl
  tradeshell repl --paper
  echo "add SPY; quote SPY" | tradeshell repl`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&paper, "paper", false, "use the in-process simulated gateway")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
