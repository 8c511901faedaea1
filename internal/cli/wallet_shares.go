package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/output"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

var walletRotateCmd = &cobra.Command{
	Use:   "rotate-shares <name>",
	Short: "Rotate a wallet's share set",
	Long: `Re-split a generated wallet's seed with fresh randomness. The seed and
addresses do not change; the old offline share stops working the moment
rotation commits. Run this if the offline share may have been exposed.`,
	Example: `  halyard wallet rotate-shares treasury`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletRotate,
}

var walletExportSharesCmd = &cobra.Command{
	Use:     "export-shares <name>",
	Short:   "Show a wallet's share layout",
	Example: `  halyard wallet export-shares treasury`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletExportShares,
}

var walletVerifyShareCmd = &cobra.Command{
	Use:   "verify-share <name>",
	Short: "Check an offline share against the recorded fingerprint",
	Long: `Check that a presented offline share belongs to the wallet's current
share generation. A share from before the last rotation fails. The
share is read interactively and never persisted.`,
	Example: `  halyard wallet verify-share treasury`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletVerifyShare,
}

var walletRecoverCmd = &cobra.Command{
	Use:   "recover <name>",
	Short: "Re-derive and display a wallet's mnemonic",
	Long: `Reconstruct the wallet seed from the on-disk shares and display the
BIP39 mnemonic. Requires the wallet passphrase when one is set. Use
this to re-create a lost paper backup, then store it offline again.`,
	Example: `  halyard wallet recover treasury`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletRecover,
}

func runWalletRotate(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	passKey, cleanup, err := passKeyForWallet(ks, args[0])
	if err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	defer cleanup()

	res, err := ks.RotateShares(args[0], passKey)
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]string{
			"offline_share":        res.OfflineShare,
			"share_fingerprint":    res.ShareFingerprint,
			"previous_fingerprint": res.PreviousFingerprint,
		})
	}

	outln(os.Stdout, "New offline share C (the previous share is now void):")
	outln(os.Stdout)
	outln(os.Stdout, "  "+res.OfflineShare)
	outln(os.Stdout)
	outln(os.Stdout, "Fingerprint: "+res.ShareFingerprint)
	return nil
}

func runWalletExportShares(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	st, err := ks.ExportShares(args[0])
	if err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), st)
	}
	_ = formatter.Printf("Scheme:               %d-of-%d\n", st.Threshold, st.Shares)
	_ = formatter.Printf("Passphrase protected: %v\n", st.PassphraseProtected)
	_ = formatter.Printf("Share A on disk:      %v\n", st.ShareAPresent)
	_ = formatter.Printf("Share B on disk:      %v\n", st.ShareBPresent)
	_ = formatter.Printf("Share C fingerprint:  %s\n", st.ShareCFingerprint)
	return nil
}

func runWalletVerifyShare(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	outln(os.Stderr, "Enter the offline share:")
	share, err := promptSeedFn()
	if err != nil {
		return err
	}

	ok, err := ks.VerifyOfflineShare(args[0], share)
	if err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]bool{"valid": ok})
	}
	if !ok {
		output.Warn("Share does NOT match the current fingerprint. If the wallet was rotated, this share is void.")
		return halerr.Wrap(halerr.ErrBackupNotConfirmed, "share verification failed")
	}
	output.Success("Share matches the current fingerprint.")
	return nil
}

func runWalletRecover(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	passKey, cleanup, err := passKeyForWallet(ks, args[0])
	if err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	defer cleanup()

	mnemonic, err := ks.RecoverMnemonic(args[0], passKey)
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]string{"mnemonic": mnemonic})
	}
	outln(os.Stdout, "Recovered mnemonic (write it down and store it offline):")
	outln(os.Stdout)
	outln(os.Stdout, "  "+mnemonic)
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	walletCmd.AddCommand(walletRotateCmd, walletExportSharesCmd,
		walletVerifyShareCmd, walletRecoverCmd)
}
