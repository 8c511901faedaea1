package keystore

import (
	"encoding/json"
	"strings"

	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// shareAAD binds a sealed box to its wallet and slot so a box copied
// between wallets or slots fails authentication.
func shareAAD(walletID, purpose string) []byte {
	return []byte(walletID + ":" + purpose)
}

// sealToFile expands a purpose-specific subkey from key, seals
// plaintext under it, and writes the box as JSON.
func (k *Keystore) sealToFile(path string, key []byte, walletID, purpose string, plaintext []byte) error {
	subkey, err := vaultcrypto.ExpandSubkey(key, walletID, purpose)
	if err != nil {
		return halerr.Wrap(err, "deriving %s subkey", purpose)
	}
	defer vaultcrypto.ZeroBytes(subkey)

	box, err := vaultcrypto.Seal(subkey, plaintext, shareAAD(walletID, purpose))
	if err != nil {
		return halerr.Wrap(err, "sealing %s", purpose)
	}
	return writeJSONPrivate(path, box)
}

// sealToBytes is sealToFile without the write, for callers that stage
// several boxes before committing any of them.
func (k *Keystore) sealToBytes(key []byte, walletID, purpose string, plaintext []byte) ([]byte, error) {
	subkey, err := vaultcrypto.ExpandSubkey(key, walletID, purpose)
	if err != nil {
		return nil, halerr.Wrap(err, "deriving %s subkey", purpose)
	}
	defer vaultcrypto.ZeroBytes(subkey)

	box, err := vaultcrypto.Seal(subkey, plaintext, shareAAD(walletID, purpose))
	if err != nil {
		return nil, halerr.Wrap(err, "sealing %s", purpose)
	}
	data, err := json.MarshalIndent(box, "", "  ")
	if err != nil {
		return nil, halerr.Wrap(err, "encoding %s box", purpose)
	}
	return append(data, '\n'), nil
}

// openFromFile reads a sealed box and decrypts it under the
// purpose-specific subkey of key.
func (k *Keystore) openFromFile(path string, key []byte, walletID, purpose string) ([]byte, error) {
	var box vaultcrypto.SealedBox
	if err := readJSON(path, &box); err != nil {
		return nil, err
	}

	subkey, err := vaultcrypto.ExpandSubkey(key, walletID, purpose)
	if err != nil {
		return nil, halerr.Wrap(err, "deriving %s subkey", purpose)
	}
	defer vaultcrypto.ZeroBytes(subkey)

	return vaultcrypto.Open(subkey, &box, shareAAD(walletID, purpose))
}

func splitWords(s string) []string {
	return strings.Fields(s)
}
