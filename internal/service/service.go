// Package service wires configuration, pipeline loading, the workflow engine
// and the monitor into the operations the command line exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/internal/monitor"
	"github.com/me/gridflow/internal/planner"
	"github.com/me/gridflow/internal/site"
	"github.com/me/gridflow/internal/workflow"
)

const defaultMonitorAddr = ":8480"

// Service runs workflow operations.
type Service struct {
	logger *slog.Logger
}

// New creates a Service.
func New(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Prepare loads the run configuration and pipeline description, builds the
// runtime workflow, creates its output prefix and persists the first
// snapshot. The returned workflow has not been started.
func (s *Service) Prepare(configPath, pipelinePath string) (*workflow.Workflow, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	generic, err := planner.Load(pipelinePath, cfg)
	if err != nil {
		return nil, err
	}
	submitPath, err := config.Required[string](cfg, "submitPath")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(submitPath, 0o755); err != nil {
		return nil, fmt.Errorf("create output prefix: %w", err)
	}

	w, err := workflow.New(generic, cfg, submitPath, s.logger)
	if err != nil {
		return nil, err
	}
	if err := w.Write(); err != nil {
		return nil, err
	}
	return w, nil
}

// Submit prepares a fresh workflow and runs it to completion.
func (s *Service) Submit(ctx context.Context, configPath, pipelinePath string) error {
	w, err := s.Prepare(configPath, pipelinePath)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	return s.runToCompletion(ctx, w)
}

// Restart resumes a persisted run from its output prefix, skipping jobs the
// checkpoint records as complete.
func (s *Service) Restart(ctx context.Context, outPrefix string) error {
	w, err := workflow.Read(outPrefix, s.logger)
	if err != nil {
		return err
	}
	if err := w.Restart(ctx); err != nil {
		return err
	}
	return s.runToCompletion(ctx, w)
}

func (s *Service) runToCompletion(ctx context.Context, w *workflow.Workflow) error {
	stop, err := s.startMonitor(w.Config(), w)
	if err != nil {
		return err
	}
	defer stop()

	runErr := w.Run(ctx, true)
	if err := w.Write(); err != nil {
		s.logger.Warn("final snapshot write failed", "error", err)
	}
	return runErr
}

func (s *Service) startMonitor(cfg *config.Config, w *workflow.Workflow) (func(), error) {
	enabled, err := config.Default(cfg, "monitorEnable", false)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return func() {}, nil
	}
	addr, err := config.Default(cfg, "monitorAddr", defaultMonitorAddr)
	if err != nil {
		return nil, err
	}

	m := monitor.New(addr, w.Name, w.Progress, s.logger)
	m.Start()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			s.logger.Warn("monitor shutdown failed", "error", err)
		}
	}, nil
}

// Report summarises a validated run without executing anything.
type Report struct {
	Workflow  string
	Jobs      int
	Endpoints int
	Pools     []site.Pool
}

// Validate loads and constructs everything a submission would, reporting the
// plan instead of running it. Configuration errors surface here.
func (s *Service) Validate(configPath, pipelinePath string) (*Report, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	generic, err := planner.Load(pipelinePath, cfg)
	if err != nil {
		return nil, err
	}
	submitPath, err := config.Required[string](cfg, "submitPath")
	if err != nil {
		return nil, err
	}
	w, err := workflow.New(generic, cfg, submitPath, s.logger)
	if err != nil {
		return nil, err
	}

	st, err := site.New(cfg, s.logger)
	if err != nil {
		return nil, err
	}
	pools, err := st.Pools()
	if err != nil {
		return nil, err
	}
	return &Report{
		Workflow:  w.Name,
		Jobs:      len(w.Jobs),
		Endpoints: len(w.Endpoints),
		Pools:     pools,
	}, nil
}
