package policy

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// normalizeEVMAddress canonicalizes an EVM address to lowercase 0x-hex
// so allowlist comparisons are insensitive to checksum casing.
func normalizeEVMAddress(s string) (string, error) {
	t := strings.TrimSpace(s)
	if !common.IsHexAddress(t) {
		return "", fmt.Errorf("invalid evm address %q", s)
	}
	return strings.ToLower(common.HexToAddress(t).Hex()), nil
}

// normalizeAddress canonicalizes an address for equality comparison on
// the given chain. Solana pubkeys are base58 and case-sensitive, so
// they compare verbatim after trimming. Bitcoin bech32 addresses are
// case-insensitive and compare lowercased; legacy base58 addresses
// compare verbatim. Everything else is treated as EVM.
func normalizeAddress(chain, s string) (string, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", false
	}
	switch chain {
	case "solana":
		return t, true
	case "bitcoin":
		lower := strings.ToLower(t)
		if strings.HasPrefix(lower, "bc1") || strings.HasPrefix(lower, "tb1") {
			return lower, true
		}
		return t, true
	default:
		norm, err := normalizeEVMAddress(t)
		if err != nil {
			return "", false
		}
		return norm, true
	}
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
