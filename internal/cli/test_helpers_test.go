package cli

import (
	"bytes"
	"testing"

	"github.com/halyard-sh/halyard/internal/config"
	"github.com/halyard-sh/halyard/internal/output"
)

// setupTestEnv points the global CLI state at a temp home with cheap
// KDF parameters and a buffered formatter, restoring everything on
// cleanup. Returns the temp home and the output buffer.
func setupTestEnv(t *testing.T) (string, *bytes.Buffer) {
	t.Helper()

	tmp := t.TempDir()

	origCfg := cfg
	origLogger := logger
	origFormatter := formatter
	t.Cleanup(func() {
		cfg = origCfg
		logger = origLogger
		formatter = origFormatter
		resetFlags()
	})

	cfg = config.Defaults()
	cfg.Home = tmp
	cfg.Security.KDFMemoryKiB = 64
	cfg.Security.KDFTime = 1
	cfg.Security.KDFParallelism = 1
	logger = config.NullLogger()

	var buf bytes.Buffer
	formatter = output.NewFormatter(output.FormatText, &buf)
	return tmp, &buf
}

// resetFlags returns command flag variables to their defaults so one
// test's flags do not leak into the next.
func resetFlags() {
	walletQR = false
	walletAccount = 0
	walletWords = 24
	walletProtect = false
	walletYes = false
	policyWallet = ""
	policyFile = ""
	policyEnable = nil
	policyDisable = nil
	backupDest = ""
	backupPassVerify = false
	historyWallet = ""
	historyLimit = 0
	versionCheck = false
}

// withMockPrompts replaces prompt functions for testing and restores
// them on cleanup.
func withMockPrompts(t *testing.T, passphrase []byte, confirm bool, seed string) {
	t.Helper()

	origPassphrase := promptPassphraseFn
	origNewPassphrase := promptNewPassphraseFn
	origConfirm := promptConfirmFn
	origSeed := promptSeedFn
	t.Cleanup(func() {
		promptPassphraseFn = origPassphrase
		promptNewPassphraseFn = origNewPassphrase
		promptConfirmFn = origConfirm
		promptSeedFn = origSeed
	})

	promptPassphraseFn = func(_ string) ([]byte, error) {
		cp := make([]byte, len(passphrase))
		copy(cp, passphrase)
		return cp, nil
	}
	promptNewPassphraseFn = func() ([]byte, error) {
		cp := make([]byte, len(passphrase))
		copy(cp, passphrase)
		return cp, nil
	}
	promptConfirmFn = func(_ string) bool { return confirm }
	promptSeedFn = func() (string, error) { return seed, nil }
}
