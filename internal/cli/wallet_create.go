package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
)

var walletCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new wallet",
	Long: `Create a new wallet with a freshly generated seed. The seed is split
2-of-3: shares A and B stay in the keystore, share C is printed once
below and must be stored offline. The mnemonic is an independent full
backup; either it or share C plus the keystore can recover the wallet.

With --protect, share B is sealed under a passphrase and every signing
operation requires an unlocked session.`,
	Example: `  halyard wallet create treasury
  halyard wallet create vault --words 24 --protect`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletCreate,
}

var walletImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import a wallet from a mnemonic or private key",
	Long: `Import an existing wallet. The material is read interactively (never
from arguments, so it stays out of shell history): a 12 or 24 word
BIP39 mnemonic, or a hex-encoded EVM private key.`,
	Example: `  halyard wallet import legacy
  halyard wallet import legacy --protect`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletImport,
}

func runWalletCreate(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}

	passKey, cleanup, err := newProtectionKey(ks)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := ks.CreateWallet(args[0], walletWords, passKey)
	if err != nil {
		return err
	}
	return printCreateResult(res)
}

func runWalletImport(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}

	material, err := promptSeedFn()
	if err != nil {
		return err
	}

	passKey, cleanup, err := newProtectionKey(ks)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := ks.ImportWallet(args[0], material, passKey)
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), rec)
	}
	_ = formatter.Printf("Imported wallet %q (%s)\n", rec.Name, rec.EVMAddresses[0])
	return nil
}

// newProtectionKey derives a fresh passphrase master key when --protect
// is set. The cleanup zeroizes the key.
func newProtectionKey(ks *keystore.Keystore) ([]byte, func(), error) {
	if !walletProtect {
		return nil, func() {}, nil
	}
	passphrase, err := promptNewPassphraseFn()
	if err != nil {
		return nil, nil, err
	}
	defer vaultcrypto.ZeroBytes(passphrase)

	key, err := ks.DerivePassphraseKey(passphrase)
	if err != nil {
		return nil, nil, err
	}
	return key, func() { vaultcrypto.ZeroBytes(key) }, nil
}

// printCreateResult shows the one-time secrets. They are written to
// stdout only; nothing here ever reaches the log file.
func printCreateResult(res *keystore.CreateResult) error {
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{
			"wallet":            res.Record,
			"mnemonic":          res.Mnemonic,
			"offline_share":     res.OfflineShare,
			"share_fingerprint": res.ShareFingerprint,
		})
	}

	_ = formatter.Printf("Created wallet %q\n", res.Record.Name)
	_ = formatter.Printf("Address: %s\n\n", res.Record.EVMAddresses[0])

	outln(os.Stdout, "Recovery mnemonic (write it down, it is not stored):")
	outln(os.Stdout)
	outln(os.Stdout, "  "+res.Mnemonic)
	outln(os.Stdout)
	outln(os.Stdout, "Offline share C (store it separately from the mnemonic):")
	outln(os.Stdout)
	outln(os.Stdout, "  "+res.OfflineShare)
	outln(os.Stdout)
	outln(os.Stdout, "Share fingerprint: "+res.ShareFingerprint)
	outln(os.Stdout)
	outln(os.Stdout, "Neither secret is shown again. The keystore keeps only the fingerprint.")
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	walletCreateCmd.Flags().IntVar(&walletWords, "words", 24, "mnemonic length: 12 or 24")
	walletCreateCmd.Flags().BoolVar(&walletProtect, "protect", false, "seal share B under a passphrase")
	walletImportCmd.Flags().BoolVar(&walletProtect, "protect", false, "seal the material under a passphrase")

	walletCmd.AddCommand(walletCreateCmd, walletImportCmd)
}
