package rendezvous

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DescriptorFile holds the publisher's connection descriptor.
	DescriptorFile = "connection_info.json"
	// LockFile marks a peer as claimed by some consumer.
	LockFile = "lockfile"
	// EndpointFile is the socket a publisher listens on.
	EndpointFile = "endpoint.sock"
)

// Root returns the rendezvous root for service under the platform temp directory.
func Root(service string) string {
	return filepath.Join(os.TempDir(), "_"+service)
}

// ResolveRoot returns override when set and the temp-directory rule otherwise.
func ResolveRoot(override, service string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return Root(service)
}

// PeerDir is the per-publisher subdirectory keyed by pid.
func PeerDir(root string, pid int) string {
	return filepath.Join(root, strconv.Itoa(pid))
}
