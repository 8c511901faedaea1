//go:build windows

package keystore

import (
	"os"

	"github.com/halyard-sh/halyard/internal/fileutil"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Lock is a held exclusive lock on the keystore. On Windows the
// exclusive open of the lock file stands in for flock.
type Lock struct {
	f *os.File
}

// AcquireLock takes the keystore lock without blocking.
func (k *Keystore) AcquireLock() (*Lock, error) {
	f, err := os.OpenFile(k.LockPath(), os.O_CREATE|os.O_RDWR|os.O_EXCL, fileutil.PrivateFileMode)
	if err != nil {
		if os.IsExist(err) {
			return nil, halerr.Wrap(halerr.ErrKeystoreBusy, "another process holds %s", k.LockPath())
		}
		return nil, halerr.Wrap(err, "opening lock file")
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	name := l.f.Name()
	_ = l.f.Close()
	_ = os.Remove(name)
	l.f = nil
}
