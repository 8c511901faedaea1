package vaultcrypto

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ShareFingerprint returns a hex-encoded BLAKE3 hash of an offline share.
// The fingerprint is stored in place of the share itself so a later restore
// attempt can be verified without the share ever touching disk.
func ShareFingerprint(share string) string {
	sum := blake3.Sum256([]byte(share))
	return hex.EncodeToString(sum[:])
}

// VerifyShareFingerprint reports whether share matches the stored
// fingerprint, in constant time.
func VerifyShareFingerprint(share, fingerprint string) bool {
	sum := blake3.Sum256([]byte(share))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(fingerprint)) == 1
}

// ShareTail returns the last n characters of a share string, used for
// tail-confirmation prompts ("enter the last 6 characters of the share you
// wrote down"). Never logged.
func ShareTail(share string, n int) string {
	if n <= 0 || len(share) == 0 {
		return ""
	}
	if n >= len(share) {
		return share
	}
	return share[len(share)-n:]
}
