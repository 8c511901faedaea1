package vaultcrypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-sh/halyard/internal/vaultcrypto"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := vaultcrypto.RandomBytes(vaultcrypto.KeySize)
	require.NoError(t, err)
	return key
}

func TestSealOpen_Roundtrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	plaintext := []byte("wallet seed entropy goes here")
	aad := []byte("halyard:wallet-1:share1")

	box, err := vaultcrypto.Seal(key, plaintext, aad)
	require.NoError(t, err)
	assert.Len(t, box.Nonce, vaultcrypto.NonceSize)

	got, err := vaultcrypto.Open(key, box, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealOpen_FreshNoncePerSeal(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	plaintext := []byte("same plaintext")

	a, err := vaultcrypto.Seal(key, plaintext, nil)
	require.NoError(t, err)
	b, err := vaultcrypto.Seal(key, plaintext, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestOpen_TamperDetection(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	plaintext := []byte("authenticated payload")
	aad := []byte("halyard:wallet-2:imported")

	box, err := vaultcrypto.Seal(key, plaintext, aad)
	require.NoError(t, err)

	// Flip every bit position of the ciphertext in turn; each must fail
	// authentication, never returning partial plaintext.
	for i := range box.Ciphertext {
		tampered := &vaultcrypto.SealedBox{
			Version:    box.Version,
			Nonce:      box.Nonce,
			Ciphertext: append([]byte(nil), box.Ciphertext...),
		}
		tampered.Ciphertext[i] ^= 0x01

		got, err := vaultcrypto.Open(key, tampered, aad)
		assert.ErrorIs(t, err, halerr.ErrAuthenticationFailed, "byte %d", i)
		assert.Nil(t, got)
	}
}

func TestOpen_AADMismatch(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	box, err := vaultcrypto.Seal(key, []byte("payload"), []byte("halyard:w:share1"))
	require.NoError(t, err)

	_, err = vaultcrypto.Open(key, box, []byte("halyard:w:share2"))
	assert.ErrorIs(t, err, halerr.ErrAuthenticationFailed)
}

func TestOpen_WrongKey(t *testing.T) {
	t.Parallel()

	box, err := vaultcrypto.Seal(testKey(t), []byte("payload"), nil)
	require.NoError(t, err)

	_, err = vaultcrypto.Open(testKey(t), box, nil)
	assert.ErrorIs(t, err, halerr.ErrAuthenticationFailed)
}

func TestOpen_CorruptBox(t *testing.T) {
	t.Parallel()

	key := testKey(t)

	_, err := vaultcrypto.Open(key, nil, nil)
	assert.ErrorIs(t, err, halerr.ErrCorruptKeystore)

	_, err = vaultcrypto.Open(key, &vaultcrypto.SealedBox{Version: 99}, nil)
	assert.ErrorIs(t, err, halerr.ErrCorruptKeystore)

	_, err = vaultcrypto.Open(key, &vaultcrypto.SealedBox{Version: 1, Nonce: []byte{1, 2}}, nil)
	assert.ErrorIs(t, err, halerr.ErrCorruptKeystore)
}
