package site

import (
	"fmt"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/pkg/model"
)

// Torque places every job on a single pool provisioned through a Torque/PBS
// cluster.
//
// Recognised site keys: queue, nodes (required), tasksPerNode (default 1),
// walltime (required), schedulerOptions (usually #PBS lines), workerInit.
type Torque struct {
	Base
}

// Pools returns the single Torque pool.
func (s *Torque) Pools() ([]Pool, error) {
	nodes, err := config.Required[int](s.site, "nodes")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	walltime, err := config.Required[string](s.site, "walltime")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	queue, err := config.Default(s.site, "queue", "")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	tasksPerNode, err := config.Default(s.site, "tasksPerNode", 1)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	workerInit, err := config.Default(s.site, "workerInit", "")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}
	schedOpts, err := config.Default(s.site, "schedulerOptions", "")
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.name, err)
	}

	jobName, err := config.WorkflowName(s.cfg)
	if err != nil {
		return nil, err
	}
	if schedOpts != "" {
		schedOpts += "\n"
	}
	schedOpts += fmt.Sprintf("#PBS -N %s\n", jobName)

	return []Pool{{
		Label:            "torque",
		Provider:         ProviderTorque,
		Nodes:            nodes,
		CoresPerNode:     tasksPerNode,
		Walltime:         walltime,
		Queue:            queue,
		SchedulerOptions: schedOpts,
		WorkerInit:       workerInit,
		MaxBlocks:        1,
	}}, nil
}

// Select always places jobs on the Torque pool.
func (s *Torque) Select(model.Resources) string {
	return "torque"
}
