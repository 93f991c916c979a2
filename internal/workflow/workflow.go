package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/internal/engine"
	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/internal/site"
	"github.com/me/gridflow/pkg/model"
)

// initialJobName names the bookend job that prepares the run. It executes on
// the submission host before the engine starts, so Execute skips it.
const initialJobName = "pipelineInit"

// checkpointFilename is the engine checkpoint database inside the run's
// output prefix.
const checkpointFilename = "checkpoint.db"

// Workflow is one run of a planner DAG: the jobs, their edges, the site
// placement policy, and the engine the jobs are submitted to.
type Workflow struct {
	Name string

	// Path is the run's output prefix; logs, the checkpoint and the
	// snapshot all live below it.
	Path string

	Jobs      map[string]*Job
	Parents   map[string][]string
	Endpoints []string
	Final     *Job

	cfg           *config.Config
	site          site.Site
	pools         []site.Pool
	commandPrefix string
	eng           engine.Engine
	logger        *slog.Logger
}

// New builds the runtime workflow for a planner DAG. The site policy and its
// pools are constructed eagerly so misconfiguration surfaces before anything
// runs.
func New(generic *model.GenericWorkflow, cfg *config.Config, path string, logger *slog.Logger) (*Workflow, error) {
	st, err := site.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	pools, err := st.Pools()
	if err != nil {
		return nil, err
	}
	prefix, err := st.CommandPrefix()
	if err != nil {
		return nil, err
	}

	w := &Workflow{
		Name:          generic.Name,
		Path:          path,
		Jobs:          make(map[string]*Job, len(generic.Jobs)),
		Parents:       make(map[string][]string),
		cfg:           cfg,
		site:          st,
		pools:         pools,
		commandPrefix: prefix,
		logger:        logging.Component(logger, "workflow").With("workflow", generic.Name),
	}

	for _, name := range generic.JobNames() {
		job, err := NewJob(generic.GetJob(name), cfg, generic.JobInputs(name))
		if err != nil {
			return nil, err
		}
		w.Jobs[name] = job
		if parents := generic.Predecessors(name); len(parents) > 0 {
			w.Parents[name] = parents
		}
		if generic.OutDegree(name) == 0 {
			w.Endpoints = append(w.Endpoints, name)
		}
	}

	if final := generic.GetFinal(); final != nil {
		job, err := NewJob(final, cfg, generic.JobInputs(final.Name))
		if err != nil {
			return nil, err
		}
		w.Final = job
	}
	return w, nil
}

// Start prepares a fresh run: it creates the log tree, executes the initial
// bookend job on the submission host, and brings up the engine with a clean
// checkpoint. A failing initial job aborts the run.
func (w *Workflow) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.Path, "logs"), 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if initial, ok := w.Jobs[initialJobName]; ok && !initial.Done {
		w.logger.Info("running initial job", "job", initialJobName)
		if err := initial.RunLocal(ctx); err != nil {
			return err
		}
	}
	return w.loadEngine(false)
}

// Restart brings up the engine for a previously interrupted run, reusing its
// checkpoint so completed jobs are not rerun.
func (w *Workflow) Restart(ctx context.Context) error {
	return w.loadEngine(true)
}

func (w *Workflow) loadEngine(reuse bool) error {
	if w.eng != nil {
		return errors.New("workflow already started")
	}
	eng, err := engine.NewLocal(engine.Options{
		Workflow:        w.Name,
		Pools:           w.pools,
		CheckpointPath:  filepath.Join(w.Path, checkpointFilename),
		ReuseCheckpoint: reuse,
		Logger:          w.logger,
	})
	if err != nil {
		return err
	}
	w.eng = eng
	return nil
}

// Execute submits the named job and, recursively, every job it depends on.
// Submission is memoized: a job reached along multiple DAG paths is submitted
// once and its handle shared. The initial bookend job is skipped; it already
// ran during Start.
func (w *Workflow) Execute(ctx context.Context, name string) (engine.Handle, error) {
	if name == initialJobName {
		return nil, nil
	}
	job, ok := w.Jobs[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}

	var deps []engine.Handle
	for _, parent := range w.Parents[name] {
		h, err := w.Execute(ctx, parent)
		if err != nil {
			return nil, err
		}
		if h != nil {
			deps = append(deps, h)
		}
	}

	pool := w.pools[0].Label
	if len(w.pools) > 1 {
		pool = w.site.Select(job.Generic.Resources)
	}
	return job.Submit(ctx, w.eng, pool, deps, w.commandPrefix, w.site.ForwardResources())
}

// Run submits every endpoint of the DAG (pulling in the full graph through
// the dependency edges). With block set it then waits for all endpoints,
// shuts the engine down and runs the final bookend job; job failures are
// collected rather than aborting the remaining waits.
func (w *Workflow) Run(ctx context.Context, block bool) error {
	if w.eng == nil {
		return errors.New("workflow not started")
	}

	handles := make([]engine.Handle, 0, len(w.Endpoints))
	for _, name := range w.Endpoints {
		h, err := w.Execute(ctx, name)
		if err != nil {
			return err
		}
		if h != nil {
			handles = append(handles, h)
		}
	}
	if !block {
		return nil
	}

	var errs []error
	for _, h := range handles {
		if err := h.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	done, failed, total := w.eng.Progress()
	w.logger.Info("run finished", "done", done, "failed", failed, "total", total)

	if err := w.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	// The final bookend runs even when endpoints failed; it merges whatever
	// did complete, and its own failure joins the result.
	if err := w.Finalize(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Config returns the run configuration the workflow was built from.
func (w *Workflow) Config() *config.Config {
	return w.cfg
}

// Progress reports the engine's task counters.
func (w *Workflow) Progress() (done, failed, total int) {
	if w.eng == nil {
		return 0, 0, 0
	}
	return w.eng.Progress()
}

// Shutdown tears down the engine. Outstanding jobs are drained first.
func (w *Workflow) Shutdown() error {
	if w.eng == nil {
		return errors.New("workflow not started")
	}
	err := w.eng.Close()
	w.eng = nil
	return err
}

// Finalize runs the final bookend job on the submission host, if one is
// defined and has not already completed.
func (w *Workflow) Finalize(ctx context.Context) error {
	if w.Final == nil || w.Final.Done {
		return nil
	}
	w.logger.Info("running final job", "job", w.Final.Generic.Name)
	return w.Final.RunLocal(ctx)
}
