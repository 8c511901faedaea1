package backup

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/halyard-sh/halyard/internal/fileutil"
	"github.com/halyard-sh/halyard/internal/keystore"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Service creates and restores keystore backups.
type Service struct {
	backupDir string
	ks        *keystore.Keystore
	now       func() time.Time
}

// NewService returns a backup service writing into backupDir.
func NewService(backupDir string, ks *keystore.Keystore) *Service {
	return &Service{backupDir: backupDir, ks: ks, now: time.Now}
}

// Create archives the full keystore directory, encrypts it with the
// passphrase, and writes a timestamped backup file. The lock file is
// excluded; everything else, including share files and history, is
// carried so a restore reproduces the keystore byte for byte.
func (s *Service) Create(passphrase string) (*Backup, string, error) {
	entries, err := s.collect()
	if err != nil {
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", halerr.Wrap(halerr.ErrWalletNotFound, "keystore is empty; nothing to back up")
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, "", halerr.Wrap(err, "encoding archive")
	}
	defer vaultcrypto.ZeroBytes(payload)

	encrypted, err := vaultcrypto.EncryptArchive(payload, passphrase)
	if err != nil {
		return nil, "", err
	}

	manifest, err := s.manifest(len(entries))
	if err != nil {
		return nil, "", err
	}
	b := &Backup{
		Version:       Version,
		Manifest:      manifest,
		EncryptedData: encrypted,
		Checksum:      ChecksumOf(encrypted),
	}

	path, err := s.write(b)
	if err != nil {
		return nil, "", err
	}
	return b, path, nil
}

// Verify checks a backup's structure and checksum without decrypting.
func (s *Service) Verify(path string) (*Manifest, error) {
	b, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b.Manifest, nil
}

// VerifyWithDecryption additionally proves the passphrase decrypts the
// archive.
func (s *Service) VerifyWithDecryption(path, passphrase string) (*Manifest, error) {
	b, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	plaintext, err := vaultcrypto.DecryptArchive(b.EncryptedData, passphrase)
	if err != nil {
		return nil, err
	}
	vaultcrypto.ZeroBytes(plaintext)
	return &b.Manifest, nil
}

// Restore decrypts a backup into destDir, which must be empty or
// missing. Restoring over a live keystore is refused; pointing the
// daemon at the restored directory is the caller's move.
func (s *Service) Restore(path, passphrase, destDir string) error {
	b, err := s.read(path)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}

	plaintext, err := vaultcrypto.DecryptArchive(b.EncryptedData, passphrase)
	if err != nil {
		return err
	}
	defer vaultcrypto.ZeroBytes(plaintext)

	var entries []fileEntry
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return halerr.Wrap(halerr.ErrBackupCorrupted, "parsing archive: %v", err)
	}

	if existing, rerr := os.ReadDir(destDir); rerr == nil && len(existing) > 0 {
		return halerr.Wrap(halerr.ErrInvalidRequest, "restore target %s is not empty", destDir)
	}
	if err := fileutil.EnsurePrivateDir(destDir); err != nil {
		return err
	}

	for _, e := range entries {
		target := filepath.Join(destDir, filepath.FromSlash(e.Path))
		if err := fileutil.EnsurePrivateDir(filepath.Dir(target)); err != nil {
			return err
		}
		if err := fileutil.WriteAtomic(target, e.Data, os.FileMode(e.Mode)); err != nil {
			return halerr.Wrap(err, "restoring %s", e.Path)
		}
	}
	return nil
}

// List returns backup filenames in the backup directory, oldest first
// by name (names embed the creation timestamp).
func (s *Service) List() ([]string, error) {
	if err := fileutil.EnsurePrivateDir(s.backupDir); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, halerr.Wrap(err, "reading backup directory")
	}
	var names []string
	for _, d := range dirents {
		if !d.IsDir() && filepath.Ext(d.Name()) == Extension {
			names = append(names, d.Name())
		}
	}
	return names, nil
}

// BackupPath resolves a backup filename inside the backup directory.
func (s *Service) BackupPath(filename string) string {
	return filepath.Join(s.backupDir, filename)
}

func (s *Service) collect() ([]fileEntry, error) {
	root := s.ks.Root()
	lockName := filepath.Base(s.ks.LockPath())

	var entries []fileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		if rel == lockName {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		data, derr := os.ReadFile(path) //nolint:gosec // walking the keystore dir
		if derr != nil {
			return derr
		}
		entries = append(entries, fileEntry{
			Path: filepath.ToSlash(rel),
			Mode: uint32(info.Mode().Perm()),
			Data: data,
		})
		return nil
	})
	if err != nil {
		return nil, halerr.Wrap(err, "collecting keystore files")
	}
	return entries, nil
}

func (s *Service) manifest(fileCount int) (Manifest, error) {
	records, err := s.ks.ListWallets()
	if err != nil {
		return Manifest{}, err
	}
	wallets := make([]WalletSummary, 0, len(records))
	for _, r := range records {
		wallets = append(wallets, WalletSummary{Name: r.Name, Kind: string(r.Kind), Accounts: r.Accounts})
	}
	host, _ := os.Hostname()
	return Manifest{
		CreatedAt:        s.now().UTC(),
		Wallets:          wallets,
		FileCount:        fileCount,
		EncryptionMethod: "age-scrypt",
		HostInfo:         host,
	}, nil
}

func (s *Service) write(b *Backup) (string, error) {
	if err := fileutil.EnsurePrivateDir(s.backupDir); err != nil {
		return "", err
	}
	name := fmt.Sprintf("keystore-%s%s", b.Manifest.CreatedAt.Format("2006-01-02-150405"), Extension)
	path := filepath.Join(s.backupDir, name)

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", halerr.Wrap(err, "encoding backup")
	}
	if err := fileutil.WriteAtomic(path, append(data, '\n'), fileutil.PrivateFileMode); err != nil {
		return "", halerr.Wrap(err, "writing backup file")
	}
	return path, nil
}

func (s *Service) read(path string) (*Backup, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided by design
	if err != nil {
		if os.IsNotExist(err) {
			return nil, halerr.Wrap(halerr.ErrBackupNotFound, "%s", path)
		}
		return nil, halerr.Wrap(err, "reading backup file")
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, halerr.Wrap(halerr.ErrBackupCorrupted, "parsing backup file: %v", err)
	}
	return &b, nil
}
