package vaultcrypto

import (
	"bytes"
	"io"

	"filippo.io/age"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// EncryptArchive encrypts plaintext with an age scrypt recipient.
// Used for exportable artifacts like keystore backups, where the
// recipient is a passphrase the user types on another machine.
func EncryptArchive(plaintext []byte, passphrase string) ([]byte, error) {
	if len(passphrase) < MinPassphraseLen {
		return nil, halerr.Wrap(halerr.ErrWeakPassphrase,
			"passphrase must be at least %d characters", MinPassphraseLen)
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, halerr.Wrap(err, "creating scrypt recipient")
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, halerr.Wrap(err, "initializing encryption")
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, halerr.Wrap(err, "writing encrypted data")
	}
	if err := w.Close(); err != nil {
		return nil, halerr.Wrap(err, "finalizing encryption")
	}
	return buf.Bytes(), nil
}

// DecryptArchive reverses EncryptArchive. A wrong passphrase surfaces
// as an authentication failure.
func DecryptArchive(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, halerr.Wrap(err, "creating scrypt identity")
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, halerr.Wrap(halerr.ErrAuthenticationFailed, "decrypting archive: %v", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, halerr.Wrap(halerr.ErrAuthenticationFailed, "reading decrypted data: %v", err)
	}
	return plaintext, nil
}
