// Package keystore owns every byte of persisted key material. It is
// the only package that ever reconstructs a plaintext seed, and it does
// so exclusively into mlock'd, explicitly zeroized buffers.
//
// On-disk layout, rooted at a single private directory:
//
//	machine_secret.bin        32-byte machine secret
//	kdf_salt.bin              16-byte Argon2id salt, shared per keystore
//	halyard.lock              advisory lock sentinel
//	tx_history.jsonl          append-only transaction history
//	audit.jsonl               append-only audit log
//	wallets/index.json        wallet records and active selection
//	wallets/<id>/wallet.json  per-wallet crypto metadata
//	wallets/<id>/share_a.machine.json
//	wallets/<id>/share_b.pass.json     (or share_b.machine.json)
//	wallets/<id>/imported.secret.json  (imported wallets)
package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/halyard-sh/halyard/internal/fileutil"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Keystore mediates all access to the wallet files under root. The
// embedded mutex is the in-process half of the single-writer guarantee;
// the flock in lock.go is the cross-process half.
type Keystore struct {
	root string

	// mu is the mutation slot: every write operation holds it for the
	// duration of the mutation.
	mu sync.Mutex

	kdfParams vaultcrypto.KDFParams
	now       func() time.Time
}

// Option configures a Keystore.
type Option func(*Keystore)

// WithKDFParams overrides the Argon2id cost parameters. Tests use this
// to avoid burning 19 MiB per derivation.
func WithKDFParams(p vaultcrypto.KDFParams) Option {
	return func(k *Keystore) { k.kdfParams = p }
}

// WithClock overrides the time source used for history entries and
// day keys.
func WithClock(now func() time.Time) Option {
	return func(k *Keystore) { k.now = now }
}

// Open prepares a keystore rooted at dir, creating the private
// directory tree on first use.
func Open(dir string, opts ...Option) (*Keystore, error) {
	k := &Keystore{
		root:      dir,
		kdfParams: vaultcrypto.DefaultKDFParams(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := fileutil.EnsurePrivateDir(dir); err != nil {
		return nil, halerr.Wrap(err, "creating keystore directory")
	}
	if err := fileutil.EnsurePrivateDir(k.walletsDir()); err != nil {
		return nil, halerr.Wrap(err, "creating wallets directory")
	}
	return k, nil
}

// Root returns the keystore's base directory.
func (k *Keystore) Root() string { return k.root }

// KDFParams returns the Argon2id parameters the keystore derives
// passphrase keys with.
func (k *Keystore) KDFParams() vaultcrypto.KDFParams { return k.kdfParams }

func (k *Keystore) walletsDir() string { return filepath.Join(k.root, "wallets") }
func (k *Keystore) walletDir(id string) string {
	return filepath.Join(k.walletsDir(), id)
}

func (k *Keystore) indexPath() string { return filepath.Join(k.walletsDir(), "index.json") }
func (k *Keystore) metaPath(id string) string {
	return filepath.Join(k.walletDir(id), "wallet.json")
}
func (k *Keystore) shareAPath(id string) string {
	return filepath.Join(k.walletDir(id), "share_a.machine.json")
}
func (k *Keystore) shareBPassPath(id string) string {
	return filepath.Join(k.walletDir(id), "share_b.pass.json")
}
func (k *Keystore) shareBMachinePath(id string) string {
	return filepath.Join(k.walletDir(id), "share_b.machine.json")
}
func (k *Keystore) importedSecretPath(id string) string {
	return filepath.Join(k.walletDir(id), "imported.secret.json")
}
func (k *Keystore) machineSecretPath() string { return filepath.Join(k.root, "machine_secret.bin") }
func (k *Keystore) kdfSaltPath() string       { return filepath.Join(k.root, "kdf_salt.bin") }

// LockPath is the advisory lock sentinel guarding this keystore.
func (k *Keystore) LockPath() string { return filepath.Join(k.root, "halyard.lock") }

func (k *Keystore) historyPath() string { return filepath.Join(k.root, "tx_history.jsonl") }
func (k *Keystore) auditPath() string   { return filepath.Join(k.root, "audit.jsonl") }

// EnsureMachineSecret returns the 32-byte machine secret, generating it
// on first use. The machine secret binds share A (and share B for
// machine-only wallets) to this host.
func (k *Keystore) EnsureMachineSecret() ([]byte, error) {
	p := k.machineSecretPath()
	if buf, err := os.ReadFile(p); err == nil { //nolint:gosec // keystore-internal path
		if len(buf) != 32 {
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "machine secret has wrong length %d", len(buf))
		}
		return buf, nil
	} else if !os.IsNotExist(err) {
		return nil, halerr.Wrap(err, "reading machine secret")
	}

	secret, err := vaultcrypto.RandomBytes(32)
	if err != nil {
		return nil, halerr.Wrap(err, "generating machine secret")
	}
	if err := fileutil.WriteAtomic(p, secret, fileutil.PrivateFileMode); err != nil {
		return nil, halerr.Wrap(err, "writing machine secret")
	}
	return secret, nil
}

// EnsureKDFSalt returns the keystore-wide passphrase salt, generating
// it on first use.
func (k *Keystore) EnsureKDFSalt() ([]byte, error) {
	p := k.kdfSaltPath()
	if buf, err := os.ReadFile(p); err == nil { //nolint:gosec // keystore-internal path
		if len(buf) != vaultcrypto.SaltSize {
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "kdf salt has wrong length %d", len(buf))
		}
		return buf, nil
	} else if !os.IsNotExist(err) {
		return nil, halerr.Wrap(err, "reading kdf salt")
	}

	salt, err := vaultcrypto.RandomSalt()
	if err != nil {
		return nil, halerr.Wrap(err, "generating kdf salt")
	}
	if err := fileutil.WriteAtomic(p, salt, fileutil.PrivateFileMode); err != nil {
		return nil, halerr.Wrap(err, "writing kdf salt")
	}
	return salt, nil
}

// DerivePassphraseKey runs the keystore's KDF over a passphrase with
// the keystore salt. The result is the session master key.
func (k *Keystore) DerivePassphraseKey(passphrase []byte) ([]byte, error) {
	salt, err := k.EnsureKDFSalt()
	if err != nil {
		return nil, err
	}
	return vaultcrypto.DerivePassphraseKey(passphrase, salt, k.kdfParams)
}

func writeJSONPrivate(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return halerr.Wrap(err, "encoding %s", filepath.Base(path))
	}
	if err := fileutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, append(data, '\n'), fileutil.PrivateFileMode)
}

func writeRawPrivate(path string, data []byte) error {
	if err := fileutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, fileutil.PrivateFileMode)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // keystore-internal path
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return halerr.Wrap(halerr.ErrCorruptKeystore, "parsing %s: %v", filepath.Base(path), err)
	}
	return nil
}
