package wallet

import (
	"regexp"

	sanitize "github.com/mrz1836/go-sanitize"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// walletNameRegex validates wallet names: alphanumeric plus underscore
// and hyphen, 1-64 chars.
var walletNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ErrInvalidWalletName indicates the wallet name is invalid.
var ErrInvalidWalletName = halerr.WithSuggestion(halerr.ErrInvalidRequest,
	"wallet name must be 1-64 alphanumeric characters, underscores, or hyphens")

// ValidateWalletName checks if a wallet name is valid.
func ValidateWalletName(name string) error {
	if !walletNameRegex.MatchString(name) {
		return ErrInvalidWalletName
	}
	return nil
}

// SuggestWalletName provides a sanitized version of an invalid wallet
// name, keeping only ASCII alphanumerics, hyphens, and underscores.
// Returns "" if nothing usable remains.
func SuggestWalletName(name string) string {
	suggested := sanitize.PathName(name)
	if suggested == "" {
		return ""
	}
	if len(suggested) > 64 {
		suggested = suggested[:64]
	}
	return suggested
}
