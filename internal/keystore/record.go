package keystore

import (
	"encoding/hex"
	"os"
	"sort"
	"time"

	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Kind distinguishes how a wallet's key material came to exist.
type Kind string

const (
	// KindGenerated wallets hold a BIP39 seed born inside the keystore
	// and split 2-of-3 across shares A, B, and C.
	KindGenerated Kind = "generated"

	// KindImported wallets hold key material supplied by the user.
	KindImported Kind = "imported"
)

// ImportedKind describes the shape of imported key material.
type ImportedKind string

const (
	ImportedPrivateKey ImportedKind = "private_key"
	ImportedMnemonic   ImportedKind = "mnemonic"
)

// WalletRecord is the index entry for a wallet. It carries no key
// material, only names, addresses, and account bookkeeping.
type WalletRecord struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Kind              Kind         `json:"kind"`
	ImportedKind      ImportedKind `json:"imported_kind,omitempty"`
	Accounts          uint32       `json:"accounts"`
	LastActiveAccount uint32       `json:"last_active_account"`
	EVMAddresses      []string     `json:"evm_addresses"`
	CreatedAt         time.Time    `json:"created_at"`
}

// walletIndex is the persisted wallets/index.json document.
type walletIndex struct {
	Wallets       []WalletRecord `json:"wallets"`
	ActiveWallet  string         `json:"active_wallet,omitempty"`
	ActiveAccount uint32         `json:"active_account"`
}

// shamirMeta records how a generated wallet's seed was split, so
// Combine can sanity-check the reconstructed length.
type shamirMeta struct {
	Shares    int `json:"shares"`
	Threshold int `json:"threshold"`
	SecretLen int `json:"secret_len"`
}

// walletMeta is the per-wallet wallet.json document. For generated
// wallets it records the Shamir geometry and the fingerprint of the
// offline share; for imported wallets, the material shape.
type walletMeta struct {
	ID                string       `json:"id"`
	Kind              Kind         `json:"kind"`
	ImportedKind      ImportedKind `json:"imported_kind,omitempty"`
	Shamir            *shamirMeta  `json:"shamir,omitempty"`
	ShareCFingerprint string       `json:"share_c_fingerprint,omitempty"`
	MnemonicWords     int          `json:"mnemonic_words,omitempty"`

	// PassphraseProtected means share B (generated) or the imported
	// secret is sealed under the passphrase master key rather than the
	// machine secret.
	PassphraseProtected bool `json:"passphrase_protected"`
}

func newWalletID() (string, error) {
	buf, err := vaultcrypto.RandomBytes(16)
	if err != nil {
		return "", halerr.Wrap(err, "generating wallet id")
	}
	return hex.EncodeToString(buf), nil
}

func (k *Keystore) loadIndex() (*walletIndex, error) {
	var idx walletIndex
	if err := readJSON(k.indexPath(), &idx); err != nil {
		if os.IsNotExist(err) {
			return &walletIndex{}, nil
		}
		return nil, err
	}
	return &idx, nil
}

func (k *Keystore) saveIndex(idx *walletIndex) error {
	sort.Slice(idx.Wallets, func(i, j int) bool {
		return idx.Wallets[i].Name < idx.Wallets[j].Name
	})
	return writeJSONPrivate(k.indexPath(), idx)
}

func (idx *walletIndex) find(name string) *WalletRecord {
	for i := range idx.Wallets {
		if idx.Wallets[i].Name == name {
			return &idx.Wallets[i]
		}
	}
	return nil
}

// ListWallets returns all wallet records sorted by name.
func (k *Keystore) ListWallets() ([]WalletRecord, error) {
	idx, err := k.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([]WalletRecord, len(idx.Wallets))
	copy(out, idx.Wallets)
	return out, nil
}

// GetWallet looks a wallet up by name.
func (k *Keystore) GetWallet(name string) (WalletRecord, error) {
	idx, err := k.loadIndex()
	if err != nil {
		return WalletRecord{}, err
	}
	rec := idx.find(name)
	if rec == nil {
		return WalletRecord{}, halerr.Wrap(halerr.ErrWalletNotFound, "wallet %q", name)
	}
	return *rec, nil
}

// ActiveWallet returns the currently selected wallet and account.
// A keystore with no wallets has no active selection.
func (k *Keystore) ActiveWallet() (WalletRecord, uint32, error) {
	idx, err := k.loadIndex()
	if err != nil {
		return WalletRecord{}, 0, err
	}
	if idx.ActiveWallet == "" {
		return WalletRecord{}, 0, halerr.Wrap(halerr.ErrWalletNotFound, "no active wallet")
	}
	rec := idx.find(idx.ActiveWallet)
	if rec == nil {
		return WalletRecord{}, 0, halerr.Wrap(halerr.ErrCorruptKeystore, "active wallet %q missing from index", idx.ActiveWallet)
	}
	return *rec, idx.ActiveAccount, nil
}

// SetActive switches the active wallet and account. The account must
// already exist on the target wallet.
func (k *Keystore) SetActive(name string, account uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx, err := k.loadIndex()
	if err != nil {
		return err
	}
	rec := idx.find(name)
	if rec == nil {
		return halerr.Wrap(halerr.ErrWalletNotFound, "wallet %q", name)
	}
	if account >= rec.Accounts {
		return halerr.Wrap(halerr.ErrAccountOutOfRange, "account %d of %d", account, rec.Accounts)
	}
	idx.ActiveWallet = name
	idx.ActiveAccount = account
	rec.LastActiveAccount = account
	return k.saveIndex(idx)
}

// RemoveWallet deletes a wallet's files and index entry. The caller is
// expected to have confirmed a backup first; the keystore does not
// enforce that here.
func (k *Keystore) RemoveWallet(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx, err := k.loadIndex()
	if err != nil {
		return err
	}
	rec := idx.find(name)
	if rec == nil {
		return halerr.Wrap(halerr.ErrWalletNotFound, "wallet %q", name)
	}
	if err := os.RemoveAll(k.walletDir(rec.ID)); err != nil {
		return halerr.Wrap(err, "removing wallet files")
	}

	kept := idx.Wallets[:0]
	for _, w := range idx.Wallets {
		if w.Name != name {
			kept = append(kept, w)
		}
	}
	idx.Wallets = kept
	if idx.ActiveWallet == name {
		idx.ActiveWallet = ""
		idx.ActiveAccount = 0
		if len(idx.Wallets) > 0 {
			idx.ActiveWallet = idx.Wallets[0].Name
		}
	}
	return k.saveIndex(idx)
}

func (k *Keystore) loadMeta(id string) (*walletMeta, error) {
	var meta walletMeta
	if err := readJSON(k.metaPath(id), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "wallet metadata missing for %s", id)
		}
		return nil, err
	}
	return &meta, nil
}
