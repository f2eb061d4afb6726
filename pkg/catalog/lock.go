package catalog

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bobboyms/minisql-core/pkg/errors"
)

// DirLock is an advisory exclusive lock on a data directory, held for the
// lifetime of whatever process opened it.
type DirLock struct {
	f *os.File
}

// LockDataDir takes an exclusive, non-blocking flock on dataDir/LOCK,
// preventing a second process (or a second LockDataDir call in this one)
// from opening the same data directory concurrently. Callers should defer
// Unlock and hold the returned DirLock for as long as they touch dataDir.
func LockDataDir(dataDir string) (*DirLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.IoError("mkdir data dir %s: %v", dataDir, err)
	}
	path := filepath.Join(dataDir, "LOCK")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.IoError("open lock file %s: %v", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.IoError("lock data dir %s: already held by another process: %v", dataDir, err)
	}
	return &DirLock{f: f}, nil
}

// Unlock releases the flock and closes the underlying file handle.
func (d *DirLock) Unlock() error {
	if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); err != nil {
		d.f.Close()
		return errors.IoError("unlock: %v", err)
	}
	return d.f.Close()
}
