// Package workflow drives a planner-supplied job DAG through an execution
// engine: it computes per-job log paths, resolves command lines, submits each
// job exactly once with its dependencies, and persists enough state to
// restart an interrupted run.
package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/me/gridflow/internal/cmdline"
	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/internal/engine"
	"github.com/me/gridflow/pkg/model"
)

// defaultStageKey is the symbolic file name rewritten when input staging is
// enabled.
const defaultStageKey = "dataset"

// Job wraps one planner job with its resolved output paths and submission
// state. A Job is submitted to the engine at most once.
type Job struct {
	Generic   *model.GenericJob
	FilePaths map[string]string
	Stdout    string
	Stderr    string
	Done      bool

	stageDir string
	stageKey string

	mu     sync.Mutex
	handle engine.Handle
}

// NewJob builds the runtime job for generic, computing its log file paths
// from the submitPath and subDirTemplate configuration keys.
func NewJob(generic *model.GenericJob, cfg *config.Config, filePaths map[string]string) (*Job, error) {
	submitPath, err := config.Required[string](cfg, "submitPath")
	if err != nil {
		return nil, err
	}
	// The subDirTemplate key shapes the log directory below
	// <submitPath>/logs; unset, logs land directly under logs/. Template
	// fields a job does not define resolve to nothing and collapse out of
	// the path.
	template, err := config.Default(cfg, "subDirTemplate", "")
	if err != nil {
		return nil, err
	}
	stageDir, err := config.Default(cfg, "stageDir", "")
	if err != nil {
		return nil, err
	}
	stageKey, err := config.Default(cfg, "stageFileKey", defaultStageKey)
	if err != nil {
		return nil, err
	}

	values := map[string]string{"label": generic.Label}
	for k, v := range generic.Tags {
		values[k] = v
	}
	// filepath.Join collapses the empty segments left by unset template
	// fields, so "label1//903344" lands at label1/903344.
	logDir := filepath.Join(submitPath, "logs", cmdline.FormatFields(template, values))

	if filePaths == nil {
		filePaths = make(map[string]string)
	}
	return &Job{
		Generic:   generic,
		FilePaths: filePaths,
		Stdout:    filepath.Join(logDir, generic.Name+".stdout"),
		Stderr:    filepath.Join(logDir, generic.Name+".stderr"),
		stageDir:  stageDir,
		stageKey:  stageKey,
	}, nil
}

// CommandLine returns the job's fully-resolved shell command. With allowStage
// set and staging configured, the staged input file is copied to a job-private
// directory first and cleaned up afterwards, preserving the command's exit
// status.
func (j *Job) CommandLine(allowStage bool) (string, error) {
	command := j.Generic.Executable + " " + j.Generic.Arguments

	files := j.FilePaths
	var stageScript string
	if allowStage && j.stageDir != "" {
		if source, ok := files[j.stageKey]; ok {
			private := filepath.Join(j.stageDir, j.Generic.Name)
			staged := filepath.Join(private, filepath.Base(source))

			files = make(map[string]string, len(j.FilePaths))
			for k, v := range j.FilePaths {
				files[k] = v
			}
			files[j.stageKey] = staged
			stageScript = fmt.Sprintf("mkdir -p %s\ncp -r %s %s\n", private, source, staged)
		}
	}

	resolved, err := cmdline.Resolve(command, j.Generic.Values, files)
	if err != nil {
		return "", fmt.Errorf("job %s: %w", j.Generic.Name, err)
	}
	if stageScript == "" {
		return resolved, nil
	}
	private := filepath.Join(j.stageDir, j.Generic.Name)
	return stageScript + resolved + fmt.Sprintf("\nretcode=$?\nrm -rf %s\nexit $retcode", private), nil
}

// Submit hands the job to the engine, to run after deps. Submitting an
// already submitted job returns the original handle; a job marked done
// returns a nil handle without touching the engine.
func (j *Job) Submit(ctx context.Context, eng engine.Engine, pool string, deps []engine.Handle, prefix string, addResources bool) (engine.Handle, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.handle != nil {
		return j.handle, nil
	}
	if j.Done {
		return nil, nil
	}

	command, err := j.CommandLine(true)
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		command = prefix + "\n" + command
	}

	spec := engine.TaskSpec{
		Name:    j.Generic.Name,
		Label:   j.Generic.Label,
		Pool:    pool,
		Command: command,
		Stdout:  j.Stdout,
		Stderr:  j.Stderr,
	}
	if addResources {
		res := j.Generic.Resources
		spec.Resources = &res
	}

	handle, err := eng.Submit(ctx, spec, deps)
	if err != nil {
		return nil, err
	}
	j.handle = handle
	return handle, nil
}

// RunLocal executes the job on the submission host, bypassing the engine.
// Used for the bookend jobs that must run on the driver. Output still goes to
// the job's log files. Success marks the job done.
func (j *Job) RunLocal(ctx context.Context) error {
	command, err := j.CommandLine(false)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.Stdout), 0o755); err != nil {
		return fmt.Errorf("job %s: create log directory: %w", j.Generic.Name, err)
	}
	stdout, err := os.OpenFile(j.Stdout, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("job %s: %w", j.Generic.Name, err)
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(j.Stderr, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("job %s: %w", j.Generic.Name, err)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("job %s failed locally: %w", j.Generic.Name, err)
	}
	j.mu.Lock()
	j.Done = true
	j.mu.Unlock()
	return nil
}
