package rendezvous

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strconv"
)

const scanBatch = 64

// Scan lazily yields every unclaimed peer under root: immediate
// subdirectories named by a pid that contain a descriptor and no lock file.
// A missing root yields nothing. Entries that vanish while being inspected
// are skipped.
func Scan(root string) iter.Seq[Peer] {
	return func(yield func(Peer) bool) {
		for p := range ScanAll(root) {
			if p.Claimed {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// ScanAll is Scan including claimed peers.
func ScanAll(root string) iter.Seq[Peer] {
	return func(yield func(Peer) bool) {
		dir, err := os.Open(root)
		if err != nil {
			return
		}
		defer dir.Close()

		for {
			entries, err := dir.ReadDir(scanBatch)
			for _, entry := range entries {
				p, ok := inspect(root, entry)
				if !ok {
					continue
				}
				if !yield(p) {
					return
				}
			}
			// io.EOF ends the directory; any other error ends this pass early.
			if err != nil {
				return
			}
		}
	}
}

func inspect(root string, entry fs.DirEntry) (Peer, bool) {
	if !entry.IsDir() {
		return Peer{}, false
	}
	pid, err := strconv.Atoi(entry.Name())
	if err != nil || pid <= 0 {
		return Peer{}, false
	}
	peerDir := filepath.Join(root, entry.Name())
	descriptor := filepath.Join(peerDir, DescriptorFile)
	info, err := os.Stat(descriptor)
	if err != nil || !info.Mode().IsRegular() {
		return Peer{}, false
	}
	return Peer{
		PID:            pid,
		Dir:            peerDir,
		DescriptorPath: descriptor,
		Claimed:        IsClaimed(peerDir),
	}, true
}
