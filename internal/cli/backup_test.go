package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

func TestBackupCreateEmptyKeystore(t *testing.T) {
	setupTestEnv(t)
	withMockPrompts(t, []byte("backup passphrase"), true, "")

	err := runBackupCreate(backupCreateCmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, halerr.ErrWalletNotFound))
}

func TestBackupCreateVerifyRestore(t *testing.T) {
	tmp, buf := setupTestEnv(t)
	withMockPrompts(t, []byte("backup passphrase"), true, "")

	createTestWallet(t, "treasury")

	require.NoError(t, runBackupCreate(backupCreateCmd, nil))

	entries, err := os.ReadDir(backupDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(backupDir(), entries[0].Name())

	buf.Reset()
	require.NoError(t, runBackupVerify(backupVerifyCmd, []string{path}))
	assert.Contains(t, buf.String(), "treasury")

	backupPassVerify = true
	require.NoError(t, runBackupVerify(backupVerifyCmd, []string{path}))

	dest := filepath.Join(tmp, "restored")
	backupDest = dest
	require.NoError(t, runBackupRestore(backupRestoreCmd, []string{path}))

	restored, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.NotEmpty(t, restored)
}

func TestBackupRestoreRefusesLiveKeystore(t *testing.T) {
	setupTestEnv(t)
	withMockPrompts(t, []byte("backup passphrase"), true, "")

	createTestWallet(t, "treasury")
	require.NoError(t, runBackupCreate(backupCreateCmd, nil))

	entries, err := os.ReadDir(backupDir())
	require.NoError(t, err)
	path := filepath.Join(backupDir(), entries[0].Name())

	// Default destination is the keystore directory, which is not empty.
	err = runBackupRestore(backupRestoreCmd, []string{path})
	require.Error(t, err)
}

func TestBackupList(t *testing.T) {
	_, buf := setupTestEnv(t)
	withMockPrompts(t, []byte("backup passphrase"), true, "")

	require.NoError(t, runBackupList(backupListCmd, nil))
	assert.Contains(t, buf.String(), "no backups")

	createTestWallet(t, "treasury")
	require.NoError(t, runBackupCreate(backupCreateCmd, nil))

	buf.Reset()
	require.NoError(t, runBackupList(backupListCmd, nil))
	assert.Contains(t, buf.String(), "NAME")
}
