package vaultcrypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// SaltSize is the per-installation passphrase salt size in bytes.
const SaltSize = 16

// MinPassphraseLen is the minimum accepted passphrase length. Rejected
// before any key derivation work is done.
const MinPassphraseLen = 8

// KDFParams holds Argon2id cost parameters. They are persisted alongside the
// salt so records remain decryptable across default changes.
type KDFParams struct {
	MemoryKiB   uint32 `json:"memory_kib"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultKDFParams match the argon2id defaults the original records were
// written with. Changing these only affects newly created wallets.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryKiB:   19 * 1024,
		Time:        2,
		Parallelism: 1,
	}
}

// DerivePassphraseKey stretches a passphrase into a 256-bit master key with
// Argon2id. The same passphrase + salt + params always yields the same key.
func DerivePassphraseKey(passphrase []byte, salt []byte, params KDFParams) ([]byte, error) {
	if len(passphrase) < MinPassphraseLen {
		return nil, halerr.ErrWeakPassphrase
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if params.MemoryKiB == 0 || params.Time == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid kdf params: %+v", params)
	}

	key := argon2.IDKey(passphrase, salt, params.Time, params.MemoryKiB, params.Parallelism, KeySize)
	return key, nil
}

// ExpandSubkey derives a purpose-bound subkey from a master key using
// HKDF-SHA256. The info string domain-separates uses of the same master key
// so it never directly encrypts two different purposes.
func ExpandSubkey(master []byte, walletID, purpose string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(master))
	}

	info := fmt.Sprintf("halyard:%s:%s", walletID, purpose)
	r := hkdf.New(sha256.New, master, nil, []byte(info))

	sub := make([]byte, KeySize)
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return sub, nil
}
