// Package engine abstracts the task-execution substrate the workflow layer
// submits to. The workflow layer builds a declarative task graph ("run this
// command after those handles resolve, on that pool") and treats everything
// returned as an opaque asynchronous result; scheduling, retries and worker
// management belong to the engine.
package engine

import (
	"context"

	"github.com/me/gridflow/pkg/model"
)

// TaskSpec describes one submitted command.
type TaskSpec struct {
	// Name identifies the task; stable across restarts of the same workflow.
	Name string

	// Label is the human-readable grouping used for tracking.
	Label string

	// Pool is the label of the executor pool to run on.
	Pool string

	// Command is the fully-resolved shell command line.
	Command string

	// Stdout and Stderr are the file paths to capture output to.
	Stdout string
	Stderr string

	// Resources carries the job's resource hints; nil unless the target
	// pool accepts them.
	Resources *model.Resources
}

// Handle is an opaque asynchronous reference to a submitted task's eventual
// result.
type Handle interface {
	// Name returns the task name the handle tracks.
	Name() string

	// Wait blocks until the task resolves and returns its failure, if any.
	Wait() error
}

// Engine runs submitted tasks. Submit never blocks on task execution; the
// returned handle resolves when the task (and transitively its dependencies)
// has run.
type Engine interface {
	// Submit queues a task to run after every dependency handle resolves
	// successfully.
	Submit(ctx context.Context, spec TaskSpec, deps []Handle) (Handle, error)

	// Progress reports resolved-successfully, resolved-failed, and total
	// submitted task counts.
	Progress() (done, failed, total int)

	// Close tears down the engine. Outstanding tasks are drained first.
	// Closing twice is an error.
	Close() error
}
