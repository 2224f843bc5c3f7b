package rendezvous

import (
	"os"
	"path/filepath"
)

// Peer is one scanner hit: a publisher directory holding a descriptor.
type Peer struct {
	PID            int
	Dir            string
	DescriptorPath string
	// Claimed is set when a lock file was present at scan time. Scan never
	// yields claimed peers; ScanAll does.
	Claimed bool
}

// PeerRecord is a Peer with its descriptor resolved. EndpointAddress is empty
// when the descriptor was missing or malformed.
type PeerRecord struct {
	PID             int
	DescriptorPath  string
	EndpointAddress string
}

// Resolve reads the peer's descriptor. Failures yield an unresolvable record
// rather than an error.
func Resolve(p Peer) PeerRecord {
	rec := PeerRecord{PID: p.PID, DescriptorPath: p.DescriptorPath}
	if d, err := ReadDescriptor(p.DescriptorPath); err == nil {
		rec.EndpointAddress = d.EndpointAddress
	}
	return rec
}

// Dir returns the publisher subdirectory the record belongs to.
func (r PeerRecord) Dir() string {
	return filepath.Dir(r.DescriptorPath)
}

// Key identifies a record across scans: same descriptor and same endpoint.
func (r PeerRecord) Key() string {
	return r.DescriptorPath + "\x00" + r.EndpointAddress
}

// Resolvable reports whether the descriptor named an endpoint.
func (r PeerRecord) Resolvable() bool {
	return r.EndpointAddress != ""
}

// EndpointExists reports whether the endpoint named by the descriptor is
// still present on disk.
func (r PeerRecord) EndpointExists() bool {
	if !r.Resolvable() {
		return false
	}
	_, err := os.Stat(r.EndpointAddress)
	return err == nil
}
