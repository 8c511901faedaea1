package keystore

import (
	"os"

	"github.com/halyard-sh/halyard/internal/shamir"
	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// RotateResult is the one-time output of a share rotation. The previous
// offline share is dead the moment commit succeeds; only the new one
// can satisfy a future restore.
type RotateResult struct {
	OfflineShare        string
	ShareFingerprint    string
	PreviousFingerprint string
}

// sealedShare is a planned share write, computed before any file is
// touched so a failure mid-plan leaves the keystore untouched.
type sealedShare struct {
	path string
	box  []byte
}

// RotateShares reconstructs a generated wallet's entropy, re-splits it
// with fresh random polynomials, and replaces shares A and B on disk.
// The old share C stops combining with the new on-disk shares; its
// fingerprint is superseded in wallet.json.
func (k *Keystore) RotateShares(name string, passKey []byte) (*RotateResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx, err := k.loadIndex()
	if err != nil {
		return nil, err
	}
	rec := idx.find(name)
	if rec == nil {
		return nil, halerr.Wrap(halerr.ErrWalletNotFound, "wallet %q", name)
	}
	if rec.Kind != KindGenerated {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "only generated wallets have rotatable shares")
	}
	meta, err := k.loadMeta(rec.ID)
	if err != nil {
		return nil, err
	}
	if meta.PassphraseProtected && passKey == nil {
		return nil, halerr.Wrap(halerr.ErrPassphraseRequired, "wallet %q", name)
	}

	entropy, err := k.recoverEntropy(rec.ID, meta, passKey)
	if err != nil {
		return nil, err
	}
	defer shamir.Zero(entropy)

	shares, err := shamir.Split(entropy, shamir.DefaultShares, shamir.DefaultThreshold)
	if err != nil {
		return nil, err
	}

	plan, err := k.planShareWrites(rec.ID, meta, shares[0], shares[1], passKey)
	if err != nil {
		return nil, err
	}

	newMeta := *meta
	newMeta.ShareCFingerprint = vaultcrypto.ShareFingerprint(shares[2])
	if err := k.commitShareWrites(plan, rec.ID, &newMeta); err != nil {
		return nil, err
	}

	return &RotateResult{
		OfflineShare:        shares[2],
		ShareFingerprint:    newMeta.ShareCFingerprint,
		PreviousFingerprint: meta.ShareCFingerprint,
	}, nil
}

// planShareWrites seals both replacement shares in memory without
// touching the keystore.
func (k *Keystore) planShareWrites(id string, meta *walletMeta, shareA, shareB string, passKey []byte) ([]sealedShare, error) {
	machine, err := k.EnsureMachineSecret()
	if err != nil {
		return nil, err
	}
	defer vaultcrypto.ZeroBytes(machine)

	boxA, err := k.sealToBytes(machine, id, purposeShareA, []byte(shareA))
	if err != nil {
		return nil, err
	}

	var (
		boxB  []byte
		pathB string
	)
	if meta.PassphraseProtected {
		boxB, err = k.sealToBytes(passKey, id, purposeShareB, []byte(shareB))
		pathB = k.shareBPassPath(id)
	} else {
		boxB, err = k.sealToBytes(machine, id, purposeShareB, []byte(shareB))
		pathB = k.shareBMachinePath(id)
	}
	if err != nil {
		return nil, err
	}

	return []sealedShare{
		{path: k.shareAPath(id), box: boxA},
		{path: pathB, box: boxB},
	}, nil
}

// commitShareWrites replaces the share files and then the metadata.
// Each write is an atomic rename.
func (k *Keystore) commitShareWrites(plan []sealedShare, id string, meta *walletMeta) error {
	for _, s := range plan {
		if err := writeRawPrivate(s.path, s.box); err != nil {
			return err
		}
	}
	return writeJSONPrivate(k.metaPath(id), meta)
}

// ShareStatus reports what the keystore knows about a generated
// wallet's share set without touching key material.
type ShareStatus struct {
	Shares              int    `json:"shares"`
	Threshold           int    `json:"threshold"`
	PassphraseProtected bool   `json:"passphrase_protected"`
	ShareCFingerprint   string `json:"share_c_fingerprint"`
	ShareAPresent       bool   `json:"share_a_present"`
	ShareBPresent       bool   `json:"share_b_present"`
}

// ExportShares describes the share layout of a generated wallet.
func (k *Keystore) ExportShares(name string) (*ShareStatus, error) {
	rec, err := k.GetWallet(name)
	if err != nil {
		return nil, err
	}
	if rec.Kind != KindGenerated {
		return nil, halerr.Wrap(halerr.ErrInvalidRequest, "wallet %q has no share set", name)
	}
	meta, err := k.loadMeta(rec.ID)
	if err != nil {
		return nil, err
	}

	st := &ShareStatus{
		PassphraseProtected: meta.PassphraseProtected,
		ShareCFingerprint:   meta.ShareCFingerprint,
		ShareAPresent:       fileExists(k.shareAPath(rec.ID)),
	}
	if meta.Shamir != nil {
		st.Shares = meta.Shamir.Shares
		st.Threshold = meta.Shamir.Threshold
	}
	if meta.PassphraseProtected {
		st.ShareBPresent = fileExists(k.shareBPassPath(rec.ID))
	} else {
		st.ShareBPresent = fileExists(k.shareBMachinePath(rec.ID))
	}
	return st, nil
}

// VerifyOfflineShare checks a presented share C against the recorded
// fingerprint. A share from before the last rotation fails.
func (k *Keystore) VerifyOfflineShare(name, share string) (bool, error) {
	rec, err := k.GetWallet(name)
	if err != nil {
		return false, err
	}
	meta, err := k.loadMeta(rec.ID)
	if err != nil {
		return false, err
	}
	if meta.ShareCFingerprint == "" {
		return false, halerr.Wrap(halerr.ErrInvalidRequest, "wallet %q has no recorded share fingerprint", name)
	}
	return vaultcrypto.VerifyShareFingerprint(share, meta.ShareCFingerprint), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
