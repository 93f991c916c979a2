package model

import "sort"

// GenericWorkflow is the planner's job DAG. Edges point from a job to the
// jobs that depend on it. The graph is acyclic by construction upstream; this
// package does not re-validate that.
type GenericWorkflow struct {
	Name  string                 `json:"name"`
	Jobs  map[string]*GenericJob `json:"jobs"`
	Final *GenericJob            `json:"final,omitempty"`

	parents  map[string][]string
	children map[string][]string
}

// NewGenericWorkflow creates an empty workflow DAG.
func NewGenericWorkflow(name string) *GenericWorkflow {
	return &GenericWorkflow{
		Name:     name,
		Jobs:     make(map[string]*GenericJob),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
}

// AddJob adds a job node.
func (w *GenericWorkflow) AddJob(job *GenericJob) {
	w.Jobs[job.Name] = job
}

// AddEdge records that child cannot run before parent.
func (w *GenericWorkflow) AddEdge(parent, child string) {
	w.parents[child] = append(w.parents[child], parent)
	w.children[parent] = append(w.children[parent], child)
}

// GetJob returns the job with the given name, or nil.
func (w *GenericWorkflow) GetJob(name string) *GenericJob {
	return w.Jobs[name]
}

// JobNames returns all job names in sorted order.
func (w *GenericWorkflow) JobNames() []string {
	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predecessors returns the names of the jobs that must complete before the
// named job.
func (w *GenericWorkflow) Predecessors(name string) []string {
	return w.parents[name]
}

// OutDegree returns the number of jobs that depend on the named job. Jobs
// with out-degree zero are the endpoints of the DAG.
func (w *GenericWorkflow) OutDegree(name string) int {
	return len(w.children[name])
}

// JobInputs returns the job's file-path table: symbolic file name to
// concrete path.
func (w *GenericWorkflow) JobInputs(name string) map[string]string {
	job := w.Jobs[name]
	if job == nil {
		if w.Final != nil && w.Final.Name == name {
			job = w.Final
		} else {
			return nil
		}
	}
	paths := make(map[string]string, len(job.Inputs))
	for _, f := range job.Inputs {
		paths[f.Name] = f.Path
	}
	return paths
}

// GetFinal returns the designated final job, or nil. The final job runs
// locally after every other job has completed and is never submitted to the
// execution engine.
func (w *GenericWorkflow) GetFinal() *GenericJob {
	return w.Final
}

// SetFinal designates the final job.
func (w *GenericWorkflow) SetFinal(job *GenericJob) {
	w.Final = job
}
