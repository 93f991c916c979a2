package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/internal/site"
	"github.com/me/gridflow/pkg/model"
)

// snapshotVersion is bumped whenever the snapshot schema changes shape.
// Read rejects snapshots written by an incompatible version.
const snapshotVersion = 1

type jobRecord struct {
	Generic   *model.GenericJob `json:"generic"`
	FilePaths map[string]string `json:"file_paths,omitempty"`
	Stdout    string            `json:"stdout"`
	Stderr    string            `json:"stderr"`
	Done      bool              `json:"done"`
}

type snapshot struct {
	Version   int                  `json:"version"`
	Name      string               `json:"name"`
	Path      string               `json:"path"`
	Config    map[string]any       `json:"config"`
	Jobs      map[string]jobRecord `json:"jobs"`
	Parents   map[string][]string  `json:"parents,omitempty"`
	Endpoints []string             `json:"endpoints"`
	Final     *jobRecord           `json:"final,omitempty"`
}

func record(j *Job) jobRecord {
	return jobRecord{
		Generic:   j.Generic,
		FilePaths: j.FilePaths,
		Stdout:    j.Stdout,
		Stderr:    j.Stderr,
		Done:      j.Done,
	}
}

func (r jobRecord) restore(cfg *config.Config) (*Job, error) {
	stageDir, err := config.Default(cfg, "stageDir", "")
	if err != nil {
		return nil, err
	}
	stageKey, err := config.Default(cfg, "stageFileKey", defaultStageKey)
	if err != nil {
		return nil, err
	}
	return &Job{
		Generic:   r.Generic,
		FilePaths: r.FilePaths,
		Stdout:    r.Stdout,
		Stderr:    r.Stderr,
		Done:      r.Done,
		stageDir:  stageDir,
		stageKey:  stageKey,
	}, nil
}

// Write persists the workflow under its output prefix so a later invocation
// can restart the run.
func (w *Workflow) Write() error {
	snap := snapshot{
		Version:   snapshotVersion,
		Name:      w.Name,
		Path:      w.Path,
		Config:    w.cfg.Raw(),
		Jobs:      make(map[string]jobRecord, len(w.Jobs)),
		Parents:   w.Parents,
		Endpoints: w.Endpoints,
	}
	for name, job := range w.Jobs {
		snap.Jobs[name] = record(job)
	}
	if w.Final != nil {
		rec := record(w.Final)
		snap.Final = &rec
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workflow snapshot: %w", err)
	}
	filename := config.SnapshotFilename(w.Path)
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write workflow snapshot: %w", err)
	}
	w.logger.Info("workflow snapshot written", "file", filename)
	return nil
}

// Read restores a persisted workflow from its output prefix. The site policy
// is rebuilt from the persisted configuration; job state (paths, completion)
// comes from the snapshot.
func Read(outPrefix string, logger *slog.Logger) (*Workflow, error) {
	filename := config.SnapshotFilename(outPrefix)
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read workflow snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode workflow snapshot %s: %w", filename, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("workflow snapshot %s has version %d, this build reads version %d", filename, snap.Version, snapshotVersion)
	}

	cfg := config.New(snap.Config)
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
		Name:          snap.Name,
		Path:          snap.Path,
		Jobs:          make(map[string]*Job, len(snap.Jobs)),
		Parents:       snap.Parents,
		Endpoints:     snap.Endpoints,
		cfg:           cfg,
		site:          st,
		pools:         pools,
		commandPrefix: prefix,
		logger:        logging.Component(logger, "workflow").With("workflow", snap.Name),
	}
	if w.Parents == nil {
		w.Parents = make(map[string][]string)
	}
	for name, rec := range snap.Jobs {
		job, err := rec.restore(cfg)
		if err != nil {
			return nil, err
		}
		w.Jobs[name] = job
	}
	if snap.Final != nil {
		final, err := snap.Final.restore(cfg)
		if err != nil {
			return nil, err
		}
		w.Final = final
	}
	return w, nil
}
