package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/output"
)

var (
	historyWallet string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show executed operations",
	Long: `Show the execution history. Only operations that actually broadcast
a transaction appear here; blocked and declined requests are recorded
in the audit log instead.`,
	Example: `  halyard history
  halyard history --wallet treasury --limit 20`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long: `Show the audit log. Every policy evaluation lands here with its tier
and outcome, whether the operation executed, was blocked, or was
declined.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func runHistory(_ *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	entries, err := ks.History()
	if err != nil {
		return err
	}

	filtered := entries[:0:0]
	for _, e := range entries {
		if historyWallet != "" && e.Wallet != historyWallet {
			continue
		}
		filtered = append(filtered, e)
	}
	if historyLimit > 0 && len(filtered) > historyLimit {
		filtered = filtered[len(filtered)-historyLimit:]
	}

	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{"history": filtered})
	}
	if len(filtered) == 0 {
		return formatter.Println("no executed operations")
	}

	tbl := output.NewTable("TIME", "TYPE", "WALLET", "CHAIN", "TO", "AMOUNT", "USD", "TX")
	for _, e := range filtered {
		tbl.AddRow(
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Type,
			e.Wallet,
			e.Chain,
			truncateMiddle(e.Destination, 16),
			amountCell(e.Amount, e.Asset),
			usdCell(e.USDValue),
			truncateMiddle(e.TxID, 16),
		)
	}
	if err := tbl.Render(formatter.Writer()); err != nil {
		return err
	}

	day := ks.CurrentDayKey()
	spent, serr := ks.DailySpendUSD(historyWallet, day)
	if serr == nil {
		return formatter.Printf("\nspent today: $%.2f\n", spent)
	}
	return nil
}

func runAudit(_ *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	entries, err := ks.ReadAudit()
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}

	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{"audit": entries})
	}
	if len(entries) == 0 {
		return formatter.Println("audit log is empty")
	}

	tbl := output.NewTable("TIME", "TYPE", "WALLET", "TIER", "OUTCOME", "USD", "REASON")
	for _, e := range entries {
		tbl.AddRow(
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Type,
			e.Wallet,
			e.Tier,
			e.Outcome,
			usdCell(e.USDValue),
			e.Reason,
		)
	}
	return tbl.Render(formatter.Writer())
}

func amountCell(amount, asset string) string {
	if amount == "" {
		return ""
	}
	if asset == "" {
		return amount
	}
	return amount + " " + asset
}

func usdCell(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("$%.2f", *v)
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen || maxLen < 8 {
		return s
	}
	keep := (maxLen - 2) / 2
	return s[:keep] + ".." + s[len(s)-keep:]
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	historyCmd.Flags().StringVar(&historyWallet, "wallet", "", "filter by wallet name")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the most recent N entries")
	auditCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the most recent N entries")

	rootCmd.AddCommand(historyCmd, auditCmd)
}
