package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/internal/site"
)

// Options configures a Local engine.
type Options struct {
	// Workflow names the run; checkpoint entries are keyed by it.
	Workflow string

	// Pools are the executor pools to provision. Each pool gets a worker
	// slot count from Pool.Workers().
	Pools []site.Pool

	// CheckpointPath locates the checkpoint database. Empty means
	// in-memory (no durability across restarts).
	CheckpointPath string

	// ReuseCheckpoint keeps previously recorded completions so already
	// finished tasks are skipped. A fresh run leaves it false, which
	// wipes the workflow's slate on startup.
	ReuseCheckpoint bool

	Logger *slog.Logger
}

// Local runs tasks as subprocesses on the submission host. Each configured
// pool is modelled as a fixed-size worker slot pool; a task occupies one slot
// of its target pool while its command runs.
type Local struct {
	workflow   string
	checkpoint *Checkpoint
	logger     *slog.Logger

	slots map[string]chan struct{}

	mu     sync.Mutex
	closed bool
	done   int
	failed int
	total  int
	wg     sync.WaitGroup
}

// NewLocal provisions a local engine from opts.
func NewLocal(opts Options) (*Local, error) {
	if len(opts.Pools) == 0 {
		return nil, errors.New("local engine: no pools configured")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbPath := opts.CheckpointPath
	if dbPath == "" {
		dbPath = ":memory:"
	}
	checkpoint, err := OpenCheckpoint(dbPath, logger)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if !opts.ReuseCheckpoint {
		if err := checkpoint.Reset(ctx, opts.Workflow); err != nil {
			checkpoint.Close()
			return nil, err
		}
	}
	if _, err := checkpoint.RecordRun(ctx, opts.Workflow); err != nil {
		checkpoint.Close()
		return nil, err
	}

	slots := make(map[string]chan struct{}, len(opts.Pools))
	for _, pool := range opts.Pools {
		slots[pool.Label] = make(chan struct{}, pool.Workers())
		logger.Debug("pool provisioned", "pool", pool.Label, "workers", pool.Workers())
	}

	return &Local{
		workflow:   opts.Workflow,
		checkpoint: checkpoint,
		logger:     logging.Component(logger, "engine"),
		slots:      slots,
	}, nil
}

// task is the handle implementation: a one-shot future.
type task struct {
	name string
	done chan struct{}
	err  error
}

func newTask(name string) *task {
	return &task{name: name, done: make(chan struct{})}
}

func (t *task) Name() string { return t.name }

func (t *task) Wait() error {
	<-t.done
	return t.err
}

func (t *task) resolve(err error) {
	t.err = err
	close(t.done)
}

// Submit queues spec to run once every handle in deps resolves successfully.
// Tasks already recorded as complete in the checkpoint resolve immediately
// without running.
func (e *Local) Submit(ctx context.Context, spec TaskSpec, deps []Handle) (Handle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("local engine: submit after close")
	}
	sem, ok := e.slots[spec.Pool]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("local engine: unknown pool %q for task %s", spec.Pool, spec.Name)
	}
	e.total++
	e.wg.Add(1)
	e.mu.Unlock()

	t := newTask(spec.Name)

	skip, err := e.checkpoint.IsDone(ctx, e.workflow, spec.Name)
	if err != nil {
		e.mu.Lock()
		e.total--
		e.mu.Unlock()
		e.wg.Done()
		return nil, err
	}
	if skip {
		e.logger.Info("task already complete, skipping", "task", spec.Name)
		e.mu.Lock()
		e.done++
		e.mu.Unlock()
		e.wg.Done()
		t.resolve(nil)
		return t, nil
	}

	go func() {
		defer e.wg.Done()
		t.resolve(e.run(ctx, spec, deps, sem))
	}()
	return t, nil
}

func (e *Local) run(ctx context.Context, spec TaskSpec, deps []Handle, sem chan struct{}) error {
	for _, dep := range deps {
		if err := dep.Wait(); err != nil {
			e.record(false)
			return fmt.Errorf("dependency %s failed: %w", dep.Name(), err)
		}
	}

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		e.record(false)
		return ctx.Err()
	}
	defer func() { <-sem }()

	e.logger.Info("task started", "task", spec.Name, "pool", spec.Pool)
	if err := runShell(ctx, spec); err != nil {
		e.logger.Error("task failed", "task", spec.Name, "error", err)
		e.record(false)
		return fmt.Errorf("task %s: %w", spec.Name, err)
	}
	if err := e.checkpoint.MarkDone(ctx, e.workflow, spec.Name); err != nil {
		e.logger.Warn("checkpoint write failed", "task", spec.Name, "error", err)
	}
	e.logger.Info("task finished", "task", spec.Name)
	e.record(true)
	return nil
}

func (e *Local) record(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ok {
		e.done++
	} else {
		e.failed++
	}
}

// Progress reports resolved and total task counts.
func (e *Local) Progress() (done, failed, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done, e.failed, e.total
}

// Close drains outstanding tasks, then releases the checkpoint.
func (e *Local) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("local engine: already closed")
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	return e.checkpoint.Close()
}

// runShell executes the task command under bash, capturing output to the
// spec's stdout/stderr files.
func runShell(ctx context.Context, spec TaskSpec) error {
	stdout, err := openOutput(spec.Stdout)
	if err != nil {
		return err
	}
	defer stdout.Close()
	stderr, err := openOutput(spec.Stderr)
	if err != nil {
		return err
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", spec.Command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

func openOutput(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
