package rendezvous

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Claim grants a consumer the exclusive right to connect to one publisher.
// TryClaim never blocks: false means someone else holds the peer (or the
// peer directory is gone) and the caller should retry on a later scan.
// Release is best-effort and must succeed when nothing is held.
type Claim interface {
	TryClaim(peerDir string) (bool, error)
	Release(peerDir string) error
}

// LockFileClaim implements Claim with an exclusively created, ownerless
// lock file. Whoever marks a connection dead releases it, whether or not it
// created the file.
type LockFileClaim struct{}

// TryClaim atomically creates the lock file.
func (LockFileClaim) TryClaim(peerDir string) (bool, error) {
	f, err := os.OpenFile(filepath.Join(peerDir, LockFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	switch {
	case err == nil:
		if cerr := f.Close(); cerr != nil {
			return true, fmt.Errorf("close lock file: %w", cerr)
		}
		return true, nil
	case errors.Is(err, fs.ErrExist), errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("create lock file: %w", err)
	}
}

// Release unlinks the lock file; a missing file is not an error.
func (LockFileClaim) Release(peerDir string) error {
	return removeIfExists(filepath.Join(peerDir, LockFile))
}

// IsClaimed reports whether a lock file is present in peerDir.
func IsClaimed(peerDir string) bool {
	_, err := os.Lstat(filepath.Join(peerDir, LockFile))
	return err == nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
