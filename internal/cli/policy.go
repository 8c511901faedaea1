package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/halyard-sh/halyard/internal/output"
	"github.com/halyard-sh/halyard/internal/policy"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// policyCmd is the parent command for spending policy management.
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and edit the spending policy",
	Long: `Inspect and edit the spending policy that gates every agent-requested
operation. Without --wallet, commands address the global policy; with
it, a per-wallet override. Overrides replace the whole document, never
merge fields, so an override always reads as the complete effective
policy for its wallet.`,
}

var (
	policyWallet string
	policyFile   string

	policyEnable  []string
	policyDisable []string
)

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective policy",
	Example: `  halyard policy show
  halyard policy show --wallet treasury`,
	Args: cobra.NoArgs,
	RunE: runPolicyShow,
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Edit the policy",
	Long: `Edit the policy. Flags change individual fields of the current
effective document; --file replaces the document with a YAML file.
Changes apply to new operations immediately, including on a running
daemon.`,
	Example: `  halyard policy set --auto-approve-usd 25 --max-usd-per-day 1000
  halyard policy set --wallet scratch --disable perps,nft
  halyard policy set --file tight.yaml`,
	Args: cobra.NoArgs,
	RunE: runPolicySet,
}

var policyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the policy to defaults",
	Long: `Reset the global policy to the shipped defaults, or with --wallet,
drop a per-wallet override so the wallet follows the global policy
again.`,
	Example: `  halyard policy reset
  halyard policy reset --wallet scratch`,
	Args: cobra.NoArgs,
	RunE: runPolicyReset,
}

func runPolicyShow(_ *cobra.Command, _ []string) error {
	store, err := openPolicies()
	if err != nil {
		return err
	}
	p := store.Effective(policyWallet)
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), p)
	}
	if policyWallet != "" && !store.HasOverride(policyWallet) {
		_ = formatter.Printf("# wallet %q follows the global policy\n", policyWallet)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	_, err = formatter.Writer().Write(data)
	return err
}

func runPolicySet(cmd *cobra.Command, _ []string) error {
	store, err := openPolicies()
	if err != nil {
		return err
	}

	var p policy.Policy
	if policyFile != "" {
		data, rerr := os.ReadFile(policyFile) // #nosec G304 -- operator-supplied path
		if rerr != nil {
			return halerr.Wrap(rerr, "reading %s", policyFile)
		}
		p = policy.Default()
		if uerr := yaml.Unmarshal(data, &p); uerr != nil {
			return halerr.Wrap(halerr.ErrConfigInvalid, "parsing %s: %v", policyFile, uerr)
		}
	} else {
		p = store.Effective(policyWallet)
	}

	if err := applyPolicyFlags(cmd, &p); err != nil {
		return err
	}
	if err := store.Update(policyWallet, p); err != nil {
		return err
	}

	scope := "global policy"
	if policyWallet != "" {
		scope = "policy override for " + policyWallet
	}
	return output.FormatSuccess(formatter.Writer(), scope+" updated", formatter.Format())
}

func runPolicyReset(_ *cobra.Command, _ []string) error {
	store, err := openPolicies()
	if err != nil {
		return err
	}
	if policyWallet != "" {
		if err := store.RemoveOverride(policyWallet); err != nil {
			return err
		}
		msg := "override removed; " + policyWallet + " follows the global policy"
		return output.FormatSuccess(formatter.Writer(), msg, formatter.Format())
	}
	if err := store.Update("", policy.Default()); err != nil {
		return err
	}
	return output.FormatSuccess(formatter.Writer(), "global policy reset to defaults", formatter.Format())
}

// applyPolicyFlags folds changed flags into p. Only flags the user
// actually passed are applied.
func applyPolicyFlags(cmd *cobra.Command, p *policy.Policy) error {
	flags := cmd.Flags()

	floatFlags := map[string]*float64{
		"auto-approve-usd":    &p.AutoApproveUSD,
		"confirm-up-to-usd":   &p.ConfirmUpToUSD,
		"hard-block-over-usd": &p.HardBlockOverUSD,
		"max-usd-per-tx":      &p.MaxUSDPerTx,
		"max-usd-per-day":     &p.MaxUSDPerDay,
	}
	for name, dst := range floatFlags {
		if flags.Changed(name) {
			v, err := flags.GetFloat64(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	if flags.Changed("max-slippage-bps") {
		v, err := flags.GetUint32("max-slippage-bps")
		if err != nil {
			return err
		}
		p.MaxSlippageBps = v
	}
	if flags.Changed("max-leverage") {
		v, err := flags.GetUint32("max-leverage")
		if err != nil {
			return err
		}
		p.MaxLeverage = v
	}
	if flags.Changed("send-allow-any") {
		v, err := flags.GetBool("send-allow-any")
		if err != nil {
			return err
		}
		p.SendAllowAny = v
	}
	if flags.Changed("send-allowlist") {
		v, err := flags.GetStringSlice("send-allowlist")
		if err != nil {
			return err
		}
		p.SendAllowlist = v
	}
	if flags.Changed("contract-allowlist") {
		v, err := flags.GetStringSlice("contract-allowlist")
		if err != nil {
			return err
		}
		p.ContractAllowlist = v
	}

	for _, name := range policyEnable {
		if err := setToggle(p, name, true); err != nil {
			return err
		}
	}
	for _, name := range policyDisable {
		if err := setToggle(p, name, false); err != nil {
			return err
		}
	}
	return nil
}

func setToggle(p *policy.Policy, name string, v bool) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "send":
		p.EnableSend = v
	case "swap":
		p.EnableSwap = v
	case "perps":
		p.EnablePerps = v
	case "nft":
		p.EnableNFT = v
	case "pumpfun":
		p.EnablePumpfun = v
	case "bridge":
		p.EnableBridge = v
	case "lending":
		p.EnableLending = v
	case "staking":
		p.EnableStaking = v
	case "liquidity":
		p.EnableLiquidity = v
	case "prediction":
		p.EnablePrediction = v
	default:
		return halerr.Wrap(halerr.ErrInvalidRequest, "unknown operation %q", name)
	}
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	policyCmd.PersistentFlags().StringVar(&policyWallet, "wallet", "", "address a per-wallet override")

	policySetCmd.Flags().StringVar(&policyFile, "file", "", "replace the document with a YAML file")
	policySetCmd.Flags().Float64("auto-approve-usd", 0, "auto-approve ceiling in USD")
	policySetCmd.Flags().Float64("confirm-up-to-usd", 0, "require-confirm ceiling in USD")
	policySetCmd.Flags().Float64("hard-block-over-usd", 0, "hard-block floor in USD")
	policySetCmd.Flags().Float64("max-usd-per-tx", 0, "per-transaction USD cap")
	policySetCmd.Flags().Float64("max-usd-per-day", 0, "per-day USD cap")
	policySetCmd.Flags().Uint32("max-slippage-bps", 0, "maximum swap slippage in basis points")
	policySetCmd.Flags().Uint32("max-leverage", 0, "maximum perps leverage")
	policySetCmd.Flags().Bool("send-allow-any", false, "allow sends to any recipient")
	policySetCmd.Flags().StringSlice("send-allowlist", nil, "allowed send recipients")
	policySetCmd.Flags().StringSlice("contract-allowlist", nil, "allowed contract addresses")
	policySetCmd.Flags().StringSliceVar(&policyEnable, "enable", nil, "operations to enable (send,swap,perps,nft,...)")
	policySetCmd.Flags().StringSliceVar(&policyDisable, "disable", nil, "operations to disable")

	policyCmd.AddCommand(policyShowCmd, policySetCmd, policyResetCmd)
	rootCmd.AddCommand(policyCmd)
}
