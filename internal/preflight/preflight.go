package preflight

import (
	"context"

	"filterms/internal/config"
	"filterms/internal/rendezvous"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	root := rendezvous.ResolveRoot(cfg.Service.RendezvousDir, cfg.Service.Name)

	return []Result{
		CheckRendezvousRoot(root),
		CheckSocketPathLength(root),
		CheckOrphans(root),
		CheckHistory(ctx, cfg),
	}
}
