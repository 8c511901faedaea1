package keystore

import (
	"os"

	"github.com/halyard-sh/halyard/internal/shamir"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	"github.com/halyard-sh/halyard/internal/wallet"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Subkey purposes bound into the AEAD associated data. Changing one of
// these invalidates every box sealed under it.
const (
	purposeShareA   = "share_a"
	purposeShareB   = "share_b"
	purposeImported = "imported"
)

// CreateResult is the one-time output of wallet creation. The mnemonic
// and the offline share are shown to the user exactly once and never
// persisted.
type CreateResult struct {
	Record WalletRecord

	// Mnemonic is the BIP39 backup phrase.
	Mnemonic string

	// OfflineShare is share C. The keystore retains only its
	// fingerprint.
	OfflineShare string

	// ShareFingerprint identifies the current share C so a later
	// restore can be checked against the right rotation generation.
	ShareFingerprint string
}

// CreateWallet generates a fresh seed, splits it 2-of-3, and persists
// shares A and B. When passKey is non-nil, share B is sealed under the
// passphrase master key and the wallet requires the passphrase to
// unlock. Share C is returned to the caller and forgotten.
func (k *Keystore) CreateWallet(name string, wordCount int, passKey []byte) (*CreateResult, error) {
	if err := wallet.ValidateWalletName(name); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	idx, err := k.loadIndex()
	if err != nil {
		return nil, err
	}
	if idx.find(name) != nil {
		return nil, halerr.Wrap(halerr.ErrWalletExists, "wallet %q", name)
	}

	entropy, err := wallet.GenerateEntropy(wordCount)
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(entropy)

	mnemonic, err := wallet.EntropyToMnemonic(entropy)
	if err != nil {
		return nil, err
	}

	seed, err := wallet.EntropyToSeed(entropy)
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(seed)

	shares, err := shamir.Split(entropy, shamir.DefaultShares, shamir.DefaultThreshold)
	if err != nil {
		return nil, err
	}

	id, err := newWalletID()
	if err != nil {
		return nil, err
	}

	if err := k.persistShares(id, shares[0], shares[1], passKey); err != nil {
		k.discardWalletDir(id)
		return nil, err
	}

	addr, err := wallet.DeriveEVMAddress(seed, 0, 0)
	if err != nil {
		k.discardWalletDir(id)
		return nil, err
	}

	meta := &walletMeta{
		ID:   id,
		Kind: KindGenerated,
		Shamir: &shamirMeta{
			Shares:    shamir.DefaultShares,
			Threshold: shamir.DefaultThreshold,
			SecretLen: len(entropy),
		},
		ShareCFingerprint:   vaultcrypto.ShareFingerprint(shares[2]),
		MnemonicWords:       wordCount,
		PassphraseProtected: passKey != nil,
	}
	if err := writeJSONPrivate(k.metaPath(id), meta); err != nil {
		k.discardWalletDir(id)
		return nil, err
	}

	rec := WalletRecord{
		ID:           id,
		Name:         name,
		Kind:         KindGenerated,
		Accounts:     1,
		EVMAddresses: []string{addr.Address},
		CreatedAt:    k.now().UTC(),
	}
	idx.Wallets = append(idx.Wallets, rec)
	if idx.ActiveWallet == "" {
		idx.ActiveWallet = name
		idx.ActiveAccount = 0
	}
	if err := k.saveIndex(idx); err != nil {
		k.discardWalletDir(id)
		return nil, err
	}

	return &CreateResult{
		Record:           rec,
		Mnemonic:         mnemonic,
		OfflineShare:     shares[2],
		ShareFingerprint: meta.ShareCFingerprint,
	}, nil
}

// persistShares seals share A under the machine secret and share B
// under either the passphrase master key or the machine secret.
func (k *Keystore) persistShares(id, shareA, shareB string, passKey []byte) error {
	machine, err := k.EnsureMachineSecret()
	if err != nil {
		return err
	}
	defer vaultcrypto.ZeroBytes(machine)

	if err := k.sealToFile(k.shareAPath(id), machine, id, purposeShareA, []byte(shareA)); err != nil {
		return err
	}

	if passKey != nil {
		return k.sealToFile(k.shareBPassPath(id), passKey, id, purposeShareB, []byte(shareB))
	}
	return k.sealToFile(k.shareBMachinePath(id), machine, id, purposeShareB, []byte(shareB))
}

// ImportWallet stores externally supplied key material: either a raw
// hex private key or a BIP39 mnemonic. The secret is sealed whole; no
// Shamir split is performed for imported wallets.
func (k *Keystore) ImportWallet(name, material string, passKey []byte) (*WalletRecord, error) {
	if err := wallet.ValidateWalletName(name); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	idx, err := k.loadIndex()
	if err != nil {
		return nil, err
	}
	if idx.find(name) != nil {
		return nil, halerr.Wrap(halerr.ErrWalletExists, "wallet %q", name)
	}

	var (
		importedKind ImportedKind
		secret       []byte
		address      string
		words        int
	)
	if key, addr, pkErr := wallet.ParseImportedPrivateKey(material); pkErr == nil {
		importedKind = ImportedPrivateKey
		secret = key
		address = addr
	} else {
		mnemonic := wallet.NormalizeMnemonicInput(material)
		if err := wallet.ValidateMnemonic(mnemonic); err != nil {
			return nil, halerr.Wrap(halerr.ErrInvalidKeyMaterial, "input is neither a private key nor a valid mnemonic")
		}
		importedKind = ImportedMnemonic
		secret = []byte(mnemonic)
		words = len(splitWords(mnemonic))

		seed, err := wallet.MnemonicToSeed(mnemonic, "")
		if err != nil {
			return nil, err
		}
		addr, err := wallet.DeriveEVMAddress(seed, 0, 0)
		vaultcrypto.ZeroBytes(seed)
		if err != nil {
			return nil, err
		}
		address = addr.Address
	}
	defer vaultcrypto.ZeroBytes(secret)

	id, err := newWalletID()
	if err != nil {
		return nil, err
	}

	sealKey, cleanup, err := k.importSealKey(id, passKey)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := k.sealToFile(k.importedSecretPath(id), sealKey, id, purposeImported, secret); err != nil {
		k.discardWalletDir(id)
		return nil, err
	}

	meta := &walletMeta{
		ID:                  id,
		Kind:                KindImported,
		ImportedKind:        importedKind,
		MnemonicWords:       words,
		PassphraseProtected: passKey != nil,
	}
	if err := writeJSONPrivate(k.metaPath(id), meta); err != nil {
		k.discardWalletDir(id)
		return nil, err
	}

	rec := WalletRecord{
		ID:           id,
		Name:         name,
		Kind:         KindImported,
		ImportedKind: importedKind,
		Accounts:     1,
		EVMAddresses: []string{address},
		CreatedAt:    k.now().UTC(),
	}
	idx.Wallets = append(idx.Wallets, rec)
	if idx.ActiveWallet == "" {
		idx.ActiveWallet = name
	}
	if err := k.saveIndex(idx); err != nil {
		k.discardWalletDir(id)
		return nil, err
	}
	return &rec, nil
}

func (k *Keystore) importSealKey(id string, passKey []byte) ([]byte, func(), error) {
	if passKey != nil {
		return passKey, func() {}, nil
	}
	machine, err := k.EnsureMachineSecret()
	if err != nil {
		return nil, nil, err
	}
	return machine, func() { vaultcrypto.ZeroBytes(machine) }, nil
}

// AddAccount derives the next BIP44 account on an HD wallet and records
// its first receive address. Wallets imported from a bare private key
// have no derivation tree and cannot grow.
func (k *Keystore) AddAccount(name string, passKey []byte) (WalletRecord, uint32, error) {
	unlocked, err := k.UnlockWallet(name, passKey)
	if err != nil {
		return WalletRecord{}, 0, err
	}
	defer unlocked.Secret.Destroy()

	if unlocked.Record.Kind == KindImported && unlocked.Record.ImportedKind == ImportedPrivateKey {
		return WalletRecord{}, 0, halerr.Wrap(halerr.ErrInvalidRequest, "wallets imported from a private key have a single account")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	idx, err := k.loadIndex()
	if err != nil {
		return WalletRecord{}, 0, err
	}
	rec := idx.find(name)
	if rec == nil {
		return WalletRecord{}, 0, halerr.Wrap(halerr.ErrWalletNotFound, "wallet %q", name)
	}

	account := rec.Accounts
	addr, err := wallet.DeriveEVMAddress(unlocked.Secret.Bytes(), account, 0)
	if err != nil {
		return WalletRecord{}, 0, err
	}
	rec.Accounts++
	rec.EVMAddresses = append(rec.EVMAddresses, addr.Address)
	if err := k.saveIndex(idx); err != nil {
		return WalletRecord{}, 0, err
	}
	return *rec, account, nil
}

// discardWalletDir removes a half-created wallet directory after a
// failed create. Best effort.
func (k *Keystore) discardWalletDir(id string) {
	_ = os.RemoveAll(k.walletDir(id))
}
