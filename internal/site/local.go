package site

import (
	"fmt"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/pkg/model"
)

// Local runs every job on the machine hosting the driver, bounded by a
// configured core count (site key: cores).
type Local struct {
	Base
}

// Pools returns the single local pool.
func (s *Local) Pools() ([]Pool, error) {
	cores, err := config.Required[int](s.site, "cores")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	return []Pool{{
		Label:      "local",
		Provider:   ProviderLocal,
		MaxWorkers: cores,
	}}, nil
}

// Select always places jobs on the local pool.
func (s *Local) Select(model.Resources) string {
	return "local"
}
