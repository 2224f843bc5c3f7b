package rendezvous

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
)

// ErrIdentityInUse is returned when another live publisher already holds the
// descriptor for the same service and pid.
var ErrIdentityInUse = errors.New("publisher identity already in use")

// HoldLiveness creates the descriptor file if needed and takes an exclusive
// advisory lock on it. The publisher keeps the lock for its whole lifetime;
// the kernel drops it when the process dies, which is what Alive observes.
func HoldLiveness(descriptorPath string) (*flock.Flock, error) {
	fl := flock.New(descriptorPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock descriptor: %w", err)
	}
	if !ok {
		return nil, ErrIdentityInUse
	}
	return fl, nil
}

// Alive reports whether a publisher still holds the liveness lock on the
// descriptor. The descriptor is opened without O_CREATE so probing never
// resurrects a file a publisher just removed.
func Alive(descriptorPath string) (bool, error) {
	fl := flock.New(descriptorPath, flock.SetFlag(os.O_RDONLY))
	ok, err := fl.TryLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, ErrNoDescriptor
		}
		return false, fmt.Errorf("probe descriptor: %w", err)
	}
	if !ok {
		return true, nil
	}
	_ = fl.Unlock()
	return false, nil
}
