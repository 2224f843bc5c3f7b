package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"

	"filterms/internal/config"
	"filterms/internal/record"
	"filterms/internal/rendezvous"
)

// maxPIDDigits is the width of the largest pid Linux hands out (4194304).
const maxPIDDigits = 7

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRendezvousRoot verifies the root is usable, or that its nearest
// existing ancestor is, since publishers create it on demand.
func CheckRendezvousRoot(root string) Result {
	const name = "Rendezvous root"
	if _, err := os.Stat(root); err == nil {
		return CheckDirectoryAccess(name, root)
	}
	ancestor := existingAncestor(root)
	result := CheckDirectoryAccess(name, ancestor)
	if result.Passed {
		result.Detail = fmt.Sprintf("%s (created on first publish under %s)", root, ancestor)
	}
	return result
}

// CheckSocketPathLength verifies the longest socket path a publisher could
// bind under root fits in sockaddr_un.
func CheckSocketPathLength(root string) Result {
	const name = "Socket path length"
	limit := len(unix.RawSockaddrUnix{}.Path) - 1
	path := filepath.Join(root, strings.Repeat("9", maxPIDDigits), rendezvous.EndpointFile)
	if len(path) > limit {
		return Result{Name: name, Detail: fmt.Sprintf("%d bytes exceeds the %s limit of %d; set service.rendezvous_dir to a shorter path", len(path), runtime.GOOS, limit)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d of %d bytes", len(path), limit)}
}

// CheckOrphans fails when dead publishers left entries behind.
func CheckOrphans(root string) Result {
	const name = "Orphaned publishers"
	var dead []string
	for peer := range rendezvous.ScanAll(root) {
		alive, err := rendezvous.Alive(peer.DescriptorPath)
		if err != nil || alive {
			continue
		}
		dead = append(dead, fmt.Sprint(peer.PID))
	}
	if len(dead) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("pids %s (run filterms sweep)", strings.Join(dead, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: "none"}
}

// CheckHistory opens the signal history when one is configured.
func CheckHistory(_ context.Context, cfg *config.Config) Result {
	const name = "Signal history"
	store, err := record.Open(cfg)
	if errors.Is(err, record.ErrDisabled) {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema ok)", store.Path())}
}

func existingAncestor(path string) string {
	for {
		parent := filepath.Dir(path)
		if _, err := os.Stat(parent); err == nil || parent == path {
			return parent
		}
		path = parent
	}
}
