package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	"github.com/halyard-sh/halyard/internal/wallet"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Prompt functions are variables so tests can substitute them.
//
//nolint:gochecknoglobals // swapped out in tests
var (
	promptPassphraseFn    = promptPassphrase
	promptNewPassphraseFn = promptNewPassphrase
	promptConfirmFn       = promptConfirm
	promptSeedFn          = promptSeedMaterial
)

func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// promptPassphrase prompts for a passphrase with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassphrase(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	passphrase, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr) // newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	return passphrase, nil
}

// promptNewPassphrase prompts for a new passphrase with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassphrase() ([]byte, error) {
	passphrase, err := promptPassphrase("Enter passphrase: ")
	if err != nil {
		return nil, err
	}

	if len(passphrase) < vaultcrypto.MinPassphraseLen {
		vaultcrypto.ZeroBytes(passphrase)
		return nil, halerr.Wrap(halerr.ErrWeakPassphrase,
			"passphrase must be at least %d characters", vaultcrypto.MinPassphraseLen)
	}

	confirm, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		vaultcrypto.ZeroBytes(passphrase)
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(confirm)

	if string(passphrase) != string(confirm) {
		vaultcrypto.ZeroBytes(passphrase)
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "passphrases do not match")
	}

	return passphrase, nil
}

// promptConfirm asks a yes/no question on stderr.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	var response string
	_, err := fmt.Scanln(&response)
	if err != nil {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// promptSeedMaterial prompts for import material: a mnemonic phrase or
// a hex private key.
func promptSeedMaterial() (string, error) {
	outln(os.Stderr, "Enter your seed material (mnemonic phrase or hex private key):")
	outln(os.Stderr, "For a mnemonic, enter all words separated by spaces.")
	outln(os.Stderr)

	var input string
	_, err := fmt.Scanln(&input)
	if err != nil {
		return promptMnemonicInteractive()
	}
	return input, nil
}

// promptMnemonicInteractive prompts for a multi-word mnemonic.
func promptMnemonicInteractive() (string, error) {
	out(os.Stderr, "Enter mnemonic (all words on one line): ")

	var words []string
	for i := 0; i < 24; i++ {
		var word string
		_, err := fmt.Scan(&word)
		if err != nil {
			break
		}
		words = append(words, word)

		mnemonic := strings.Join(words, " ")
		if (len(words) == 12 || len(words) == 24) && wallet.ValidateMnemonic(mnemonic) == nil {
			return mnemonic, nil
		}
	}

	if len(words) > 0 {
		return strings.Join(words, " "), nil
	}
	return "", halerr.Wrap(halerr.ErrInvalidRequest, "no input provided")
}
