// Package vaultcrypto provides the cryptographic primitives for the
// keystore: authenticated encryption, passphrase key derivation, subkey
// expansion, share fingerprints, and secure memory handling.
package vaultcrypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// KeySize is the AEAD key size in bytes (256-bit).
const KeySize = chacha20poly1305.KeySize

// NonceSize is the AEAD nonce size in bytes (96-bit, random per seal).
const NonceSize = chacha20poly1305.NonceSize

// SealedBox is the on-disk representation of an encrypted payload.
// The random nonce is stored alongside the ciphertext; the AAD is
// reconstructed by the caller from wallet id + purpose and is not stored.
type SealedBox struct {
	Version    int    `json:"v"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// sealedBoxVersion is the current SealedBox format version.
const sealedBoxVersion = 1

// Seal encrypts plaintext under key with ChaCha20-Poly1305, binding aad
// into the authentication tag. A fresh random 96-bit nonce is drawn for
// every call.
func Seal(key, plaintext, aad []byte) (*SealedBox, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("initializing aead: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	ct := aead.Seal(nil, nonce, plaintext, aad)
	return &SealedBox{
		Version:    sealedBoxVersion,
		Nonce:      nonce,
		Ciphertext: ct,
	}, nil
}

// Open decrypts a SealedBox. Any tampering with the ciphertext, nonce, or
// AAD fails authentication; no partial plaintext is ever returned.
func Open(key []byte, box *SealedBox, aad []byte) ([]byte, error) {
	if box == nil {
		return nil, halerr.ErrCorruptKeystore
	}
	if box.Version != sealedBoxVersion {
		return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "unsupported sealed box version %d", box.Version)
	}
	if len(box.Nonce) != NonceSize {
		return nil, halerr.Wrap(halerr.ErrCorruptKeystore, "invalid nonce length %d", len(box.Nonce))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("initializing aead: %w", err)
	}

	pt, err := aead.Open(nil, box.Nonce, box.Ciphertext, aad)
	if err != nil {
		return nil, halerr.ErrAuthenticationFailed
	}
	return pt, nil
}
