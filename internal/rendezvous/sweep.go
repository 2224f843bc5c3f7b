package rendezvous

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// SweepResult describes one orphaned peer directory found by Sweep.
type SweepResult struct {
	PID int
	Dir string
	Err error
}

// Sweep removes the artifacts of publishers that died without tearing down:
// descriptor, lock file, socket and the directory itself. Live publishers
// are left alone. The liveness lock is held while removing so a publisher
// restarting under the same pid cannot interleave.
func Sweep(root string) []SweepResult {
	var results []SweepResult
	for p := range ScanAll(root) {
		fl := flock.New(p.DescriptorPath, flock.SetFlag(os.O_RDONLY))
		ok, err := fl.TryLock()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			results = append(results, SweepResult{PID: p.PID, Dir: p.Dir, Err: fmt.Errorf("probe descriptor: %w", err)})
			continue
		}
		if !ok {
			continue
		}
		err = removeArtifacts(p.Dir)
		_ = fl.Unlock()
		if err == nil {
			if rerr := os.Remove(p.Dir); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				err = fmt.Errorf("remove peer directory: %w", rerr)
			}
		}
		results = append(results, SweepResult{PID: p.PID, Dir: p.Dir, Err: err})
	}
	return results
}

func removeArtifacts(dir string) error {
	var errs []error
	for _, name := range []string{LockFile, EndpointFile, DescriptorFile} {
		if err := removeIfExists(filepath.Join(dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
