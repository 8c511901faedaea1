package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/agnivade/levenshtein"

	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/policy"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean" hint.
const maxSuggestDistance = 3

func keystoreDir() string { return filepath.Join(cfg.Home, "keystore") }
func policyPath() string  { return filepath.Join(cfg.Home, "policy.yaml") }
func backupDir() string   { return filepath.Join(cfg.Home, "backups") }
func socketPath() string  { return filepath.Join(cfg.Home, "halyard.sock") }

// openKeystore opens the keystore under the configured home with the
// configured Argon2id costs.
func openKeystore() (*keystore.Keystore, error) {
	return keystore.Open(keystoreDir(), keystore.WithKDFParams(cfg.KDFParams()))
}

// openPolicies opens the policy document for the configured home.
func openPolicies() (*policy.Store, error) {
	return policy.NewStore(policyPath())
}

// withWalletSuggestion decorates a wallet-not-found error with the
// closest existing wallet name.
func withWalletSuggestion(ks *keystore.Keystore, name string, err error) error {
	if err == nil || !errors.Is(err, halerr.ErrWalletNotFound) {
		return err
	}
	records, lerr := ks.ListWallets()
	if lerr != nil {
		return err
	}
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, rec := range records {
		if d := levenshtein.ComputeDistance(name, rec.Name); d < bestDist {
			best = rec.Name
			bestDist = d
		}
	}
	if best == "" {
		return err
	}
	return halerr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", best))
}
