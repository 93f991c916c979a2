package site

import (
	"fmt"

	"github.com/phayes/freeport"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/pkg/model"
)

// WorkQueue fronts a single pool with a work-distribution broker that
// matches jobs to heterogeneous worker capacity. Per-job resource hints
// (memory, cores, disk, walltime) are always forwarded so the broker can
// place each job.
//
// Recognised site keys: port (default 0 = discover a free port), cores
// (worker cap, default unbounded), maxBlocks (default 1).
type WorkQueue struct {
	Base
}

// Pools returns the single broker-fronted pool. When no port is pinned by
// configuration, a free one is discovered dynamically.
func (s *WorkQueue) Pools() ([]Pool, error) {
	port, err := config.Default(s.site, "port", 0)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	if port == 0 {
		port, err = freeport.GetFreePort()
		if err != nil {
			return nil, fmt.Errorf("site %s: discover broker port: %w", s.name, err)
		}
		s.logger.Info("work-queue broker port discovered", "port", port)
	}
	cores, err := config.Default(s.site, "cores", 0)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	maxBlocks, err := config.Default(s.site, "maxBlocks", 1)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	address, err := s.Address()
	if err != nil {
		return nil, err
	}

	return []Pool{{
		Label:                "workqueue",
		Provider:             ProviderWorkQueue,
		Port:                 port,
		Address:              address,
		MaxWorkers:           cores,
		MaxBlocks:            maxBlocks,
		AcceptsResourceHints: true,
	}}, nil
}

// Select always places jobs on the broker pool; the broker does the
// fine-grained matching from the forwarded hints.
func (s *WorkQueue) Select(model.Resources) string {
	return "workqueue"
}
