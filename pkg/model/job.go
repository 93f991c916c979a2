package model

// Resources describes the compute demand of a single job, as declared by the
// upstream planner.
type Resources struct {
	// MemoryMB is the requested memory in megabytes.
	MemoryMB int `json:"memory_mb"`

	// CPUs is the requested number of CPU cores.
	CPUs int `json:"cpus"`

	// DiskMB is the requested scratch disk in megabytes.
	DiskMB int `json:"disk_mb"`

	// WalltimeMin is the requested wall-clock limit in minutes.
	WalltimeMin int `json:"walltime_min"`
}

// MemoryGB returns the memory demand in gigabytes.
func (r Resources) MemoryGB() float64 {
	return float64(r.MemoryMB) / 1024
}

// File is a named input file with a concrete source path.
type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// GenericJob is one node of the planner's DAG: a shell-invokable command with
// symbolic placeholders, plus the metadata needed to place and track it.
// It is supplied by the planner and consumed read-only.
type GenericJob struct {
	// Name is unique within a workflow.
	Name string `json:"name"`

	// Label is a human-readable grouping label (e.g. the pipeline stage).
	Label string `json:"label"`

	// Tags is an arbitrary key/value set; values may appear in log
	// sub-directory templates.
	Tags map[string]string `json:"tags,omitempty"`

	// Executable is the path of the program to run.
	Executable string `json:"executable"`

	// Arguments is the argument string, possibly containing {field},
	// <ENV:NAME> and <FILE:NAME> placeholders.
	Arguments string `json:"arguments"`

	// Values holds the job-local variables substituted for {field}
	// placeholders in Arguments.
	Values map[string]string `json:"values,omitempty"`

	// Resources is the declared compute demand.
	Resources Resources `json:"resources"`

	// Inputs lists the job's named input files.
	Inputs []File `json:"inputs,omitempty"`
}
