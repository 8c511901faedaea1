//go:build !windows

package keystore

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/halyard-sh/halyard/internal/fileutil"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Lock is a held exclusive advisory lock on the keystore. The kernel
// releases it if the process dies, so a stale lock file never wedges
// the keystore.
type Lock struct {
	f *os.File
}

// AcquireLock takes the keystore's exclusive advisory lock without
// blocking. A second process gets ErrKeystoreBusy immediately.
func (k *Keystore) AcquireLock() (*Lock, error) {
	f, err := os.OpenFile(k.LockPath(), os.O_CREATE|os.O_RDWR, fileutil.PrivateFileMode)
	if err != nil {
		return nil, halerr.Wrap(err, "opening lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, halerr.Wrap(halerr.ErrKeystoreBusy, "another process holds %s", k.LockPath())
		}
		return nil, halerr.Wrap(err, "locking keystore")
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
