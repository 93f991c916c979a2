package site

import (
	"fmt"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/pkg/model"
)

// Tier is one rung of a tiered-memory site: jobs whose memory demand fits
// under MemoryGB are eligible for it.
type Tier struct {
	Label     string
	MemoryGB  int
	Partition string
	QOS       string
	Walltime  string
	MaxBlocks int
}

// Hard-coded tier constants. A site configuration overrides them per tier
// (e.g. site key "medium.memoryGB"), falling back to the site-wide defaults
// (partition, qos, walltime) and then to these values.
var defaultTiers = []Tier{
	{Label: "small", MemoryGB: 4, MaxBlocks: 3000},
	{Label: "medium", MemoryGB: 10, MaxBlocks: 1000},
	{Label: "large", MemoryGB: 50, MaxBlocks: 100},
	{Label: "xlarge", MemoryGB: 150, MaxBlocks: 10},
}

// TieredSlurm provisions one Slurm pool per memory tier and routes each job
// to the smallest tier whose ceiling covers the job's memory demand. Jobs
// too large for every tier land on the largest.
//
// Site-wide keys: partition (default "batch"), qos (default "normal"),
// walltime (default "72:00:00"), account. Per-tier keys under the tier name:
// memoryGB, partition, qos, walltime, maxBlocks.
type TieredSlurm struct {
	Slurm
	tiers []Tier
}

func newTieredSlurm(base Base) (*TieredSlurm, error) {
	defaultPartition, err := config.Default(base.site, "partition", "batch")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", base.name, err)
	}
	defaultQOS, err := config.Default(base.site, "qos", "normal")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", base.name, err)
	}
	defaultWalltime, err := config.Default(base.site, "walltime", "72:00:00")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", base.name, err)
	}

	tiers := make([]Tier, 0, len(defaultTiers))
	for _, def := range defaultTiers {
		tier := Tier{Label: def.Label}
		if tier.MemoryGB, err = config.Default(base.site, def.Label+".memoryGB", def.MemoryGB); err != nil {
			return nil, fmt.Errorf("site %s: %w", base.name, err)
		}
		if tier.Partition, err = config.Default(base.site, def.Label+".partition", defaultPartition); err != nil {
			return nil, fmt.Errorf("site %s: %w", base.name, err)
		}
		if tier.QOS, err = config.Default(base.site, def.Label+".qos", defaultQOS); err != nil {
			return nil, fmt.Errorf("site %s: %w", base.name, err)
		}
		if tier.Walltime, err = config.Default(base.site, def.Label+".walltime", defaultWalltime); err != nil {
			return nil, fmt.Errorf("site %s: %w", base.name, err)
		}
		if tier.MaxBlocks, err = config.Default(base.site, def.Label+".maxBlocks", def.MaxBlocks); err != nil {
			return nil, fmt.Errorf("site %s: %w", base.name, err)
		}
		tiers = append(tiers, tier)
	}

	for i := 1; i < len(tiers); i++ {
		if tiers[i].MemoryGB < tiers[i-1].MemoryGB {
			return nil, fmt.Errorf("site %s: tier %s memory ceiling (%d GB) below tier %s (%d GB)",
				base.name, tiers[i].Label, tiers[i].MemoryGB, tiers[i-1].Label, tiers[i-1].MemoryGB)
		}
	}

	return &TieredSlurm{Slurm: Slurm{Base: base}, tiers: tiers}, nil
}

// Pools returns one pool per tier.
func (s *TieredSlurm) Pools() ([]Pool, error) {
	account, err := config.Default(s.site, "account", "")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	jobName, err := config.WorkflowName(s.cfg)
	if err != nil {
		return nil, err
	}

	pools := make([]Pool, 0, len(s.tiers))
	for _, tier := range s.tiers {
		schedOpts := fmt.Sprintf("#SBATCH --job-name=%s\n#SBATCH --qos=%s\n", jobName, tier.QOS)
		pools = append(pools, Pool{
			Label:            tier.Label,
			Provider:         ProviderSlurm,
			Nodes:            1,
			CoresPerNode:     1,
			MemPerNodeGB:     tier.MemoryGB,
			Walltime:         tier.Walltime,
			Partition:        tier.Partition,
			QOS:              tier.QOS,
			Account:          account,
			SchedulerOptions: schedOpts,
			MaxBlocks:        tier.MaxBlocks,
			MaxWorkers:       1,
		})
	}
	return pools, nil
}

// Select walks the tiers in ascending memory order and returns the first
// whose ceiling covers the job's demand, defaulting to the largest tier.
func (s *TieredSlurm) Select(res model.Resources) string {
	memory := res.MemoryGB()
	for _, tier := range s.tiers[:len(s.tiers)-1] {
		if memory <= float64(tier.MemoryGB) {
			return tier.Label
		}
	}
	return s.tiers[len(s.tiers)-1].Label
}
