package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/output"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// walletCmd is the parent command for wallet management.
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Create and manage wallets",
	Long: `Create and manage wallets in the local keystore.

Generated wallets are born inside the keystore and split 2-of-3: two
shares stay on disk, the third is shown once at creation and must be
kept offline. Agents never see any of this; they only name wallets.`,
}

var (
	walletQR      bool
	walletAccount uint32
	walletWords   int
	walletProtect bool
	walletYes     bool
)

var walletListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List wallets",
	Example: `  halyard wallet list`,
	Args:    cobra.NoArgs,
	RunE:    runWalletList,
}

var walletSelectCmd = &cobra.Command{
	Use:     "select <name>",
	Short:   "Set the active wallet",
	Example: `  halyard wallet select treasury --account 1`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletSelect,
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet from the keystore",
	Long: `Remove a wallet from the keystore. For generated wallets the on-disk
shares are deleted; the offline share alone can no longer reconstruct
the seed, so this is final unless you kept the mnemonic.`,
	Example: `  halyard wallet remove scratch --yes`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletRemove,
}

var walletAddAccountCmd = &cobra.Command{
	Use:     "add-account <name>",
	Short:   "Derive the next account for a wallet",
	Example: `  halyard wallet add-account treasury`,
	Args:    cobra.ExactArgs(1),
	RunE:    runWalletAddAccount,
}

var walletAddressCmd = &cobra.Command{
	Use:   "address [name]",
	Short: "Show a wallet's receive address",
	Long: `Show a wallet's EVM address for funding. Defaults to the active
wallet and account. With --qr on a terminal, also renders the address
as a QR code.`,
	Example: `  halyard wallet address
  halyard wallet address treasury --account 1 --qr`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWalletAddress,
}

func runWalletList(_ *cobra.Command, _ []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	records, err := ks.ListWallets()
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), records)
	}
	if len(records) == 0 {
		return formatter.Println("No wallets. Create one with: halyard wallet create <name>")
	}

	activeName := ""
	if rec, _, aerr := ks.ActiveWallet(); aerr == nil {
		activeName = rec.Name
	}

	tbl := output.NewTable("", "NAME", "KIND", "ACCOUNTS", "ADDRESS")
	for _, rec := range records {
		marker := " "
		if rec.Name == activeName {
			marker = "*"
		}
		addr := ""
		if len(rec.EVMAddresses) > 0 {
			addr = rec.EVMAddresses[0]
		}
		tbl.AddRow(marker, rec.Name, string(rec.Kind), fmt.Sprintf("%d", rec.Accounts), addr)
	}
	return tbl.Render(formatter.Writer())
}

func runWalletSelect(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	if err := ks.SetActive(args[0], walletAccount); err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	msg := fmt.Sprintf("active wallet: %s (account %d)", args[0], walletAccount)
	return output.FormatSuccess(formatter.Writer(), msg, formatter.Format())
}

func runWalletRemove(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	if _, err := ks.GetWallet(args[0]); err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	if !walletYes && !promptConfirmFn(fmt.Sprintf("Remove wallet %q? This cannot be undone.", args[0])) {
		return halerr.Wrap(halerr.ErrUserDeclined, "removal aborted")
	}
	if err := ks.RemoveWallet(args[0]); err != nil {
		return err
	}
	msg := fmt.Sprintf("wallet %q removed", args[0])
	return output.FormatSuccess(formatter.Writer(), msg, formatter.Format())
}

func runWalletAddAccount(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}
	passKey, cleanup, err := passKeyForWallet(ks, args[0])
	if err != nil {
		return withWalletSuggestion(ks, args[0], err)
	}
	defer cleanup()

	rec, account, err := ks.AddAccount(args[0], passKey)
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{
			"wallet":  rec.Name,
			"account": account,
			"address": rec.EVMAddresses[account],
		})
	}
	output.Successf("Account %d added: %s", account, rec.EVMAddresses[account])
	return nil
}

func runWalletAddress(_ *cobra.Command, args []string) error {
	ks, err := openKeystore()
	if err != nil {
		return err
	}

	var rec keystore.WalletRecord
	account := walletAccount
	if len(args) == 1 {
		rec, err = ks.GetWallet(args[0])
		if err != nil {
			return withWalletSuggestion(ks, args[0], err)
		}
	} else {
		rec, account, err = ks.ActiveWallet()
		if err != nil {
			return err
		}
		if walletAccount != 0 {
			account = walletAccount
		}
	}
	if int(account) >= len(rec.EVMAddresses) {
		return halerr.Wrap(halerr.ErrAccountOutOfRange, "wallet %q has %d accounts", rec.Name, rec.Accounts)
	}
	addr := rec.EVMAddresses[account]

	if formatter.IsJSON() {
		return writeJSON(formatter.Writer(), map[string]any{
			"wallet":  rec.Name,
			"account": account,
			"address": addr,
		})
	}
	_ = formatter.Printf("%s (account %d)\n%s\n", rec.Name, account, addr)
	if walletQR {
		return output.RenderQR(formatter.Writer(), addr)
	}
	return nil
}

// passKeyForWallet derives the passphrase master key when the wallet
// needs one, prompting interactively. The cleanup zeroizes the key.
func passKeyForWallet(ks *keystore.Keystore, name string) ([]byte, func(), error) {
	needs, err := ks.NeedsPassphrase(name)
	if err != nil {
		return nil, nil, err
	}
	if !needs {
		return nil, func() {}, nil
	}
	passphrase, err := promptPassphraseFn("Enter passphrase: ")
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

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	walletSelectCmd.Flags().Uint32Var(&walletAccount, "account", 0, "account index")
	walletAddressCmd.Flags().Uint32Var(&walletAccount, "account", 0, "account index")
	walletAddressCmd.Flags().BoolVar(&walletQR, "qr", false, "render the address as a QR code")
	walletRemoveCmd.Flags().BoolVar(&walletYes, "yes", false, "skip the confirmation prompt")

	walletCmd.AddCommand(walletListCmd, walletSelectCmd, walletRemoveCmd,
		walletAddAccountCmd, walletAddressCmd)
	rootCmd.AddCommand(walletCmd)
}
