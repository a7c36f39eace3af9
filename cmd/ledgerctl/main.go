// Command ledgerctl inspects the trade ledger.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"card-trader-go/internal/app"
	"card-trader-go/internal/config"
	"card-trader-go/internal/ledger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. When l is nil the ledger is opened
// from configuration before each command runs.
func newRootCmd(l *ledger.Ledger) *cobra.Command {
	var (
		configDir string
		dsn       string
		closeDB   func()
	)

	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Inspect the card trading ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if l != nil {
				return nil
			}
			cfg, err := config.LoadConfig(configDir)
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.Database.DSN = dsn
			}
			opened, c, err := app.OpenLedger(cfg.Database)
			if err != nil {
				return fmt.Errorf("could not open ledger: %w", err)
			}
			l, closeDB = opened, c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeDB != nil {
				closeDB()
			}
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory containing config.yml")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "database DSN, overrides database.dsn")

	ledgerFn := func() *ledger.Ledger { return l }
	root.AddCommand(
		statsCmd(ledgerFn),
		tradesCmd(ledgerFn),
		holdingsCmd(ledgerFn),
		historyCmd(ledgerFn),
		verifyCmd(ledgerFn),
	)
	return root
}

func statsCmd(l func() *ledger.Ledger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := l().GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func tradesCmd(l func() *ledger.Ledger) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recent trades, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := l().ListTrades(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), trades)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultTradeLimit, "maximum number of trades")
	return cmd
}

func holdingsCmd(l func() *ledger.Ledger) *cobra.Command {
	return &cobra.Command{
		Use:   "holdings",
		Short: "List open positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			holdings, err := l().ListHoldings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), holdings)
		},
	}
}

func historyCmd(l func() *ledger.Ledger) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <card-id>",
		Short: "Show recorded prices for a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obs, err := l().PriceHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), obs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultTradeLimit, "maximum number of observations")
	return cmd
}

func verifyCmd(l func() *ledger.Ledger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the running counters against the trade history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := l().VerifyStats(cmd.Context())
			if errors.Is(err, ledger.ErrStatsDrift) {
				return err
			}
			if err != nil {
				return fmt.Errorf("could not verify: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// run executes the command tree against l with args; used by tests.
func run(ctx context.Context, l *ledger.Ledger, out io.Writer, args ...string) error {
	cmd := newRootCmd(l)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
