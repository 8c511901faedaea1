package keystore

import (
	"os"
	"strings"

	"github.com/halyard-sh/halyard/internal/shamir"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	"github.com/halyard-sh/halyard/internal/wallet"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Unlocked is reconstructed key material, alive only as long as the
// caller keeps the SecureBytes. For generated and imported-mnemonic
// wallets Secret holds the 64-byte BIP39 seed; for wallets imported
// from a private key it holds the raw 32-byte key.
type Unlocked struct {
	Record WalletRecord
	Secret *vaultcrypto.SecureBytes
}

// NeedsPassphrase reports whether unlocking the named wallet requires
// the passphrase master key.
func (k *Keystore) NeedsPassphrase(name string) (bool, error) {
	rec, err := k.GetWallet(name)
	if err != nil {
		return false, err
	}
	meta, err := k.loadMeta(rec.ID)
	if err != nil {
		return false, err
	}
	return meta.PassphraseProtected, nil
}

// UnlockWallet reconstructs the wallet's secret from its persisted
// shares. passKey is the passphrase master key, or nil for
// machine-only wallets. Callers own the returned SecureBytes and must
// Destroy it.
func (k *Keystore) UnlockWallet(name string, passKey []byte) (*Unlocked, error) {
	rec, err := k.GetWallet(name)
	if err != nil {
		return nil, err
	}
	meta, err := k.loadMeta(rec.ID)
	if err != nil {
		return nil, err
	}
	if meta.PassphraseProtected && passKey == nil {
		return nil, halerr.Wrap(halerr.ErrPassphraseRequired, "wallet %q", name)
	}

	var secret *vaultcrypto.SecureBytes
	switch rec.Kind {
	case KindGenerated:
		secret, err = k.unlockGenerated(rec.ID, meta, passKey)
	case KindImported:
		secret, err = k.unlockImported(rec.ID, meta, passKey)
	default:
		err = halerr.Wrap(halerr.ErrCorruptKeystore, "unknown wallet kind %q", rec.Kind)
	}
	if err != nil {
		return nil, err
	}

	// A seed that derives a different first address than the one
	// recorded at creation means the share files are out of step, e.g.
	// a crash mid-rotation. Refuse to sign with it.
	if rec.ImportedKind != ImportedPrivateKey && len(rec.EVMAddresses) > 0 {
		addr, derr := wallet.DeriveEVMAddress(secret.Bytes(), 0, 0)
		if derr != nil || !strings.EqualFold(addr.Address, rec.EVMAddresses[0]) {
			secret.Destroy()
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "reconstructed seed does not match recorded address")
		}
	}
	return &Unlocked{Record: rec, Secret: secret}, nil
}

func (k *Keystore) unlockGenerated(id string, meta *walletMeta, passKey []byte) (*vaultcrypto.SecureBytes, error) {
	entropy, err := k.recoverEntropy(id, meta, passKey)
	if err != nil {
		return nil, err
	}
	defer shamir.Zero(entropy)

	if meta.Shamir != nil && len(entropy) != meta.Shamir.SecretLen {
		return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "reconstructed secret has length %d, want %d", len(entropy), meta.Shamir.SecretLen)
	}

	seed, err := wallet.EntropyToSeed(entropy)
	if err != nil {
		return nil, err
	}
	sec, err := vaultcrypto.SecureBytesFromSlice(seed)
	vaultcrypto.ZeroBytes(seed)
	return sec, err
}

func (k *Keystore) unlockImported(id string, meta *walletMeta, passKey []byte) (*vaultcrypto.SecureBytes, error) {
	sealKey, cleanup, err := k.importSealKey(id, passKey)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	secret, err := k.openFromFile(k.importedSecretPath(id), sealKey, id, purposeImported)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "imported secret missing")
		}
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(secret)

	if meta.ImportedKind == ImportedMnemonic {
		seed, err := wallet.MnemonicToSeed(string(secret), "")
		if err != nil {
			return nil, err
		}
		sec, err := vaultcrypto.SecureBytesFromSlice(seed)
		vaultcrypto.ZeroBytes(seed)
		return sec, err
	}
	return vaultcrypto.SecureBytesFromSlice(secret)
}

// RecoverMnemonic reconstructs a generated wallet's backup phrase from
// its live shares. Imported wallets return their stored mnemonic when
// they have one.
func (k *Keystore) RecoverMnemonic(name string, passKey []byte) (string, error) {
	rec, err := k.GetWallet(name)
	if err != nil {
		return "", err
	}
	meta, err := k.loadMeta(rec.ID)
	if err != nil {
		return "", err
	}
	if meta.PassphraseProtected && passKey == nil {
		return "", halerr.Wrap(halerr.ErrPassphraseRequired, "wallet %q", name)
	}

	switch {
	case rec.Kind == KindGenerated:
		entropy, err := k.recoverEntropy(rec.ID, meta, passKey)
		if err != nil {
			return "", err
		}
		defer shamir.Zero(entropy)
		return wallet.EntropyToMnemonic(entropy)
	case meta.ImportedKind == ImportedMnemonic:
		sealKey, cleanup, err := k.importSealKey(rec.ID, passKey)
		if err != nil {
			return "", err
		}
		defer cleanup()
		secret, err := k.openFromFile(k.importedSecretPath(rec.ID), sealKey, rec.ID, purposeImported)
		if err != nil {
			return "", err
		}
		defer vaultcrypto.ZeroBytes(secret)
		return string(secret), nil
	default:
		return "", halerr.Wrap(halerr.ErrInvalidRequest, "wallet %q has no mnemonic", name)
	}
}

func (k *Keystore) recoverEntropy(id string, meta *walletMeta, passKey []byte) ([]byte, error) {
	machine, err := k.EnsureMachineSecret()
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(machine)

	shareA, err := k.openFromFile(k.shareAPath(id), machine, id, purposeShareA)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, halerr.Wrap(halerr.ErrInsufficientShares, "share A missing")
		}
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(shareA)

	var shareB []byte
	if meta.PassphraseProtected {
		shareB, err = k.openFromFile(k.shareBPassPath(id), passKey, id, purposeShareB)
	} else {
		shareB, err = k.openFromFile(k.shareBMachinePath(id), machine, id, purposeShareB)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, halerr.Wrap(halerr.ErrInsufficientShares, "share B missing")
		}
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(shareB)

	return shamir.Combine([]string{string(shareA), string(shareB)})
}
