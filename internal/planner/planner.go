// Package planner loads a pipeline description file into the job DAG the
// workflow layer consumes.
package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/pkg/model"
)

type fileSpec struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type resourceSpec struct {
	MemoryMB    int `yaml:"memoryMB"`
	CPUs        int `yaml:"cpus"`
	DiskMB      int `yaml:"diskMB"`
	WalltimeMin int `yaml:"walltimeMin"`
}

type jobSpec struct {
	Name       string            `yaml:"name"`
	Label      string            `yaml:"label"`
	Tags       map[string]string `yaml:"tags"`
	Executable string            `yaml:"executable"`
	Arguments  string            `yaml:"arguments"`
	Values     map[string]string `yaml:"values"`
	Resources  resourceSpec      `yaml:"resources"`
	Inputs     []fileSpec        `yaml:"inputs"`
	Final      bool              `yaml:"final"`
}

type edgeSpec struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

type pipelineSpec struct {
	Name  string     `yaml:"name"`
	Jobs  []jobSpec  `yaml:"jobs"`
	Edges []edgeSpec `yaml:"edges"`
}

// Load reads a pipeline description file and builds the job DAG. The
// workflow name comes from the file, falling back to the run configuration's
// project and campaign entries.
func Load(path string, cfg *config.Config) (*model.GenericWorkflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	var spec pipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse pipeline %s: %w", path, err)
	}
	if len(spec.Jobs) == 0 {
		return nil, fmt.Errorf("pipeline %s declares no jobs", path)
	}

	name := spec.Name
	if name == "" {
		name, err = config.WorkflowName(cfg)
		if err != nil {
			return nil, err
		}
	}

	w := model.NewGenericWorkflow(name)
	for _, js := range spec.Jobs {
		if js.Name == "" {
			return nil, fmt.Errorf("pipeline %s: job with no name", path)
		}
		job := toGeneric(js)
		if js.Final {
			if w.GetFinal() != nil {
				return nil, fmt.Errorf("pipeline %s: more than one final job (%s and %s)", path, w.GetFinal().Name, js.Name)
			}
			w.SetFinal(job)
			continue
		}
		if w.GetJob(js.Name) != nil {
			return nil, fmt.Errorf("pipeline %s: duplicate job name %q", path, js.Name)
		}
		w.AddJob(job)
	}

	for _, e := range spec.Edges {
		for _, name := range []string{e.Parent, e.Child} {
			if w.GetJob(name) == nil {
				return nil, fmt.Errorf("pipeline %s: edge references unknown job %q (the final job cannot appear in edges)", path, name)
			}
		}
		w.AddEdge(e.Parent, e.Child)
	}
	return w, nil
}

func toGeneric(js jobSpec) *model.GenericJob {
	job := &model.GenericJob{
		Name:       js.Name,
		Label:      js.Label,
		Tags:       js.Tags,
		Executable: js.Executable,
		Arguments:  js.Arguments,
		Values:     js.Values,
		Resources: model.Resources{
			MemoryMB:    js.Resources.MemoryMB,
			CPUs:        js.Resources.CPUs,
			DiskMB:      js.Resources.DiskMB,
			WalltimeMin: js.Resources.WalltimeMin,
		},
	}
	for _, f := range js.Inputs {
		job.Inputs = append(job.Inputs, model.File{Name: f.Name, Path: f.Path})
	}
	return job
}
