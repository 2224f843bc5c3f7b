package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filterms/internal/rendezvous"
)

// SkipIfSocketsForbidden skips the test when the sandbox refuses to bind
// Unix sockets.
func SkipIfSocketsForbidden(t testing.TB, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("skipping socket test: %v", err)
	}
}

// WritePeer creates a peer subdirectory holding a descriptor that names
// endpoint, without binding anything.
func WritePeer(t testing.TB, root string, pid int, endpoint string) string {
	t.Helper()

	dir := rendezvous.PeerDir(root, pid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir peer dir: %v", err)
	}
	if err := rendezvous.WriteDescriptor(filepath.Join(dir, rendezvous.DescriptorFile), rendezvous.Descriptor{EndpointAddress: endpoint}); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return dir
}

// Eventually calls cond until it reports true or timeout elapses.
func Eventually(t testing.TB, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Exists reports whether path is present.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
