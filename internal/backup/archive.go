// Package backup archives the keystore directory into a single
// passphrase-encrypted file that can be restored on another machine.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Version is the current backup format version.
const Version = 1

// Extension is the file extension for backup files.
const Extension = ".halyard"

// Backup is the on-disk backup envelope. The manifest and checksum are
// plaintext so a backup can be inventoried and integrity-checked
// without the passphrase.
type Backup struct {
	Version int `json:"version"`

	Manifest Manifest `json:"manifest"`

	// EncryptedData is the age-encrypted keystore archive.
	EncryptedData []byte `json:"encrypted_data"`

	// Checksum is the SHA-256 hash of EncryptedData.
	Checksum string `json:"checksum"`
}

// Manifest describes the backup without revealing secrets.
type Manifest struct {
	CreatedAt        time.Time       `json:"created_at"`
	Wallets          []WalletSummary `json:"wallets"`
	FileCount        int             `json:"file_count"`
	EncryptionMethod string          `json:"encryption_method"`
	HostInfo         string          `json:"host_info,omitempty"`
}

// WalletSummary is one wallet's public metadata.
type WalletSummary struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Accounts uint32 `json:"accounts"`
}

// fileEntry is one keystore file inside the decrypted archive.
type fileEntry struct {
	Path string `json:"path"`
	Mode uint32 `json:"mode"`
	Data []byte `json:"data"`
}

// Checksum computes the hex SHA-256 of data.
func ChecksumOf(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Validate checks the envelope for structural consistency and verifies
// the checksum. It never needs the passphrase.
func (b *Backup) Validate() error {
	if b.Version != Version {
		return halerr.Wrap(halerr.ErrBackupCorrupted, "unsupported backup version %d", b.Version)
	}
	if len(b.EncryptedData) == 0 {
		return halerr.Wrap(halerr.ErrBackupCorrupted, "no encrypted data")
	}
	if got := ChecksumOf(b.EncryptedData); got != b.Checksum {
		return halerr.Wrap(halerr.ErrBackupCorrupted, "checksum mismatch")
	}
	return nil
}
