package rendezvous

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrNoDescriptor reports a peer directory without a readable descriptor.
var ErrNoDescriptor = errors.New("connection descriptor not found")

// Descriptor is the sole content of a publisher's connection_info.json.
type Descriptor struct {
	EndpointAddress string `json:"server file"`
}

// WriteDescriptor replaces the contents of path in place. The file is not
// renamed into position because the publisher holds its liveness lock on
// this inode.
func WriteDescriptor(path string, d Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// ReadDescriptor parses the descriptor at path.
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Descriptor{}, ErrNoDescriptor
		}
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	d.EndpointAddress = strings.TrimSpace(d.EndpointAddress)
	if d.EndpointAddress == "" {
		return Descriptor{}, fmt.Errorf("parse descriptor %s: empty endpoint", path)
	}
	return d, nil
}
