package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/small-frappuccino/tasbot/pkg/app"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/pix"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
	"github.com/small-frappuccino/tasbot/pkg/util"
)

// =============================================================================
// ROOT
// =============================================================================

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           util.AppName,
		Short:         "T.A.S Mania transport bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Start the Discord bot", Args: cobra.NoArgs, RunE: runBot},
		newMigrateCmd(),
		newPriceCmd(),
		newLedgerCmd(),
		newPixCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), util.AppName, app.Version())
			},
		},
	)
	return root
}

func runBot(cmd *cobra.Command, _ []string) error {
	opts, err := app.OptionsFromEnv()
	if err != nil {
		return err
	}
	ctx, stop := util.InterruptContext(cmd.Context())
	defer stop()
	return app.Run(ctx, opts)
}

// =============================================================================
// STORE COMMANDS
// =============================================================================

func openStore() (*storage.Store, error) {
	util.LoadDotEnv()
	if err := util.EnsureDataDirs(); err != nil {
		return nil, err
	}
	store := storage.NewStore(util.DatabaseDSN())
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("open %s store: %w", store.Dialect(), err)
	}
	return store, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s schema is up to date\n", store.Dialect())
			return nil
		},
	}
}

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect the cash book"}

	cmd.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Print the current balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			bal, err := ledger.New(store).Balance(cmd.Context())
			if err != nil {
				return err
			}
			printBalance(cmd, bal)
			return nil
		},
	})

	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "Print the latest ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := ledger.New(store).History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printEntries(cmd, entries)
			return nil
		},
	}
	history.Flags().IntVar(&limit, "limit", ledger.DefaultHistoryLimit, fmt.Sprintf("entries to print (1-%d)", ledger.MaxHistoryLimit))
	cmd.AddCommand(history)
	return cmd
}

func printBalance(cmd *cobra.Command, bal ledger.Balance) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saldo:    %s\n", transport.FormatBRL(bal.Total))
	fmt.Fprintf(out, "Entradas: %s\n", transport.FormatBRL(bal.In))
	fmt.Fprintf(out, "Saídas:   %s\n", transport.FormatBRL(bal.Out))
}

func printEntries(cmd *cobra.Command, entries []ledger.Entry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Nenhuma movimentação registrada.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s %s %-7s %12s  %s", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Kind.Emoji(), e.Kind, transport.FormatBRL(e.Amount), e.Description)
		if e.Reason != "" {
			fmt.Fprintf(out, " (%s)", e.Reason)
		}
		fmt.Fprintln(out)
	}
}

// =============================================================================
// SETTINGS COMMANDS
// =============================================================================

func loadSettings() (*files.ConfigManager, error) {
	util.LoadDotEnv()
	mgr := files.NewConfigManager(util.SettingsPath())
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "price", Short: "Show or change the tariff in settings.yaml"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current tariff",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mgr, err := loadSettings()
				if err != nil {
					return err
				}
				printPricing(cmd, mgr.Pricing())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <price-per-million>",
			Short: "Change the price per million silver, e.g. 0,65",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				price, err := transport.ParseRate(args[0])
				if err != nil {
					return fmt.Errorf("invalid price %q: %w", args[0], err)
				}
				mgr, err := loadSettings()
				if err != nil {
					return err
				}
				p := mgr.Pricing()
				p.PricePerMillion = price
				if err := mgr.UpdatePricing(p); err != nil {
					return err
				}
				printPricing(cmd, mgr.Pricing())
				return nil
			},
		},
	)
	return cmd
}

func printPricing(cmd *cobra.Command, p transport.Pricing) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Preço por milhão: R$ %.2f\n", p.PricePerMillion)
	fmt.Fprintf(out, "Prioridade alta:  R$ %.2f (+%.0f%%)\n", p.RatePerMillion(transport.PriorityHigh), p.HighSurcharge*100)
	fmt.Fprintf(out, "Mínimo:           %s\n", transport.FormatSilver(p.MinimumSilver))
}

// =============================================================================
// PIX COMMANDS
// =============================================================================

func newPixCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pix", Short: "PIX helpers"}
	var txid string
	payload := &cobra.Command{
		Use:   "payload <amount>",
		Short: "Print the copy-and-paste PIX code for an amount, e.g. 40,32",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := transport.ParseBRL(args[0])
			if err != nil {
				return err
			}
			mgr, err := loadSettings()
			if err != nil {
				return err
			}
			code, err := pixPayload(mgr.Snapshot(), amount, txid)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
	payload.Flags().StringVar(&txid, "txid", "", "reference shown on the payer's statement")
	cmd.AddCommand(payload)
	return cmd
}

func pixPayload(s files.Settings, amount transport.Cents, txid string) (string, error) {
	return pix.Payload(
		pix.Merchant{Key: s.PIX.Key, Name: s.PIX.MerchantName, City: s.PIX.MerchantCity},
		pix.Payment{Amount: amount, TxID: txid},
	)
}
