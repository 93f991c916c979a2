package site

import (
	"fmt"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/pkg/model"
)

// Slurm places every job on a single pool provisioned through a Slurm
// cluster.
//
// Recognised site keys (required unless a default is given here or supplied
// by a wrapping strategy): nodes, coresPerNode, walltime, memPerNodeGB, qos,
// singleton (default false), maxBlocks (default 1), schedulerOptions (text
// prepended to the submission script, usually #SBATCH lines).
type Slurm struct {
	Base
}

// slurmDefaults carries strategy-supplied fallbacks for makePool. Zero
// values mean "no default": the corresponding site key is then required.
type slurmDefaults struct {
	nodes            int
	coresPerNode     int
	walltime         string
	memPerNodeGB     int
	qos              string
	singleton        bool
	schedulerOptions string
	initBlocks       int
	minBlocks        int
	maxBlocks        int
	workerInit       string
}

// makePool builds one Slurm pool from the site configuration, falling back
// to the given defaults. Missing sizing parameters with no default fail
// here, before any submission.
func (s *Slurm) makePool(label string, d slurmDefaults) (Pool, error) {
	nodes, err := config.Default(s.site, "nodes", d.nodes)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	if nodes == 0 {
		return Pool{}, fmt.Errorf("site %s: nodes is required and has no default", s.name)
	}
	coresPerNode, err := config.Default(s.site, "coresPerNode", d.coresPerNode)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	walltime, err := config.Default(s.site, "walltime", d.walltime)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	if walltime == "" {
		return Pool{}, fmt.Errorf("site %s: walltime is required and has no default", s.name)
	}
	memPerNode, err := config.Default(s.site, "memPerNodeGB", d.memPerNodeGB)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	qos, err := config.Default(s.site, "qos", d.qos)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	singleton, err := config.Default(s.site, "singleton", d.singleton)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	maxBlocks := d.maxBlocks
	if maxBlocks == 0 {
		maxBlocks = 1
	}
	maxBlocks, err = config.Default(s.site, "maxBlocks", maxBlocks)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}
	schedOpts, err := config.Default(s.site, "schedulerOptions", d.schedulerOptions)
	if err != nil {
		return Pool{}, fmt.Errorf("site %s: %w", s.name, err)
	}

	jobName, err := config.WorkflowName(s.cfg)
	if err != nil {
		return Pool{}, err
	}
	if schedOpts != "" {
		schedOpts += "\n"
	}
	schedOpts += fmt.Sprintf("#SBATCH --job-name=%s\n", jobName)
	if qos != "" {
		schedOpts += fmt.Sprintf("#SBATCH --qos=%s\n", qos)
	}
	if singleton {
		// Slurm runs at most one job with our job name at a time; a second
		// block can sit in the queue and take over when the first hits its
		// walltime limit.
		schedOpts += "#SBATCH --dependency=singleton\n"
	}

	return Pool{
		Label:            label,
		Provider:         ProviderSlurm,
		Nodes:            nodes,
		CoresPerNode:     coresPerNode,
		MemPerNodeGB:     memPerNode,
		Walltime:         walltime,
		QOS:              qos,
		SchedulerOptions: schedOpts,
		WorkerInit:       d.workerInit,
		Singleton:        singleton,
		InitBlocks:       d.initBlocks,
		MinBlocks:        d.minBlocks,
		MaxBlocks:        maxBlocks,
	}, nil
}

// Pools returns the single Slurm pool.
func (s *Slurm) Pools() ([]Pool, error) {
	pool, err := s.makePool("slurm", slurmDefaults{})
	if err != nil {
		return nil, err
	}
	return []Pool{pool}, nil
}

// Select always places jobs on the single Slurm pool.
func (s *Slurm) Select(model.Resources) string {
	return "slurm"
}

// Singleton keeps a continuous presence in the batch queue: one block runs
// while one more waits, so work continues across walltime limits. The site
// keys are those of Slurm; maxBlocks defaults to 2 and singleton to true.
type Singleton struct {
	Slurm
}

// Pools returns the single reservation-style pool.
func (s *Singleton) Pools() ([]Pool, error) {
	pool, err := s.makePool("singleton", slurmDefaults{
		nodes:      1,
		walltime:   "02:00:00",
		singleton:  true,
		initBlocks: 1,
		minBlocks:  1,
		maxBlocks:  2,
		workerInit: ExportEnvironment(),
	})
	if err != nil {
		return nil, err
	}
	return []Pool{pool}, nil
}

// Select always places jobs on the reservation pool.
func (s *Singleton) Select(model.Resources) string {
	return "singleton"
}
