package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/me/gridflow/internal/config"
)

func writePipeline(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validPipeline = `
name: survey.dr1
jobs:
  - name: calibrate
    label: calib
    tags: {visit: "42"}
    executable: run
    arguments: "<FILE:butlerConfig> --visit {visit}"
    values: {visit: "42"}
    resources: {memoryMB: 4096, cpus: 2}
    inputs:
      - {name: butlerConfig, path: /data/butler}
  - name: coadd
    label: coadd
    executable: run
    arguments: "--stack"
  - name: wrapup
    label: final
    executable: run
    arguments: "--merge"
    final: true
edges:
  - {parent: calibrate, child: coadd}
`

func TestLoad(t *testing.T) {
	path := writePipeline(t, validPipeline)
	w, err := Load(path, config.New(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if w.Name != "survey.dr1" {
		t.Errorf("Name = %q", w.Name)
	}
	if len(w.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2 (final excluded)", len(w.Jobs))
	}

	calibrate := w.GetJob("calibrate")
	if calibrate.Resources.MemoryMB != 4096 || calibrate.Resources.CPUs != 2 {
		t.Errorf("resources = %+v", calibrate.Resources)
	}
	if calibrate.Tags["visit"] != "42" {
		t.Errorf("tags = %v", calibrate.Tags)
	}
	if got := w.JobInputs("calibrate"); got["butlerConfig"] != "/data/butler" {
		t.Errorf("inputs = %v", got)
	}

	if got := w.Predecessors("coadd"); len(got) != 1 || got[0] != "calibrate" {
		t.Errorf("Predecessors(coadd) = %v", got)
	}
	if w.OutDegree("coadd") != 0 {
		t.Error("coadd should be an endpoint")
	}
	if w.GetFinal() == nil || w.GetFinal().Name != "wrapup" {
		t.Error("final job not recognised")
	}
}

func TestLoadNameFallsBackToConfig(t *testing.T) {
	path := writePipeline(t, "jobs:\n  - {name: only, label: l, executable: run}\n")
	cfg := config.New(map[string]any{"project": "survey", "campaign": "dr2"})
	w, err := Load(path, cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.Name != "survey.dr2" {
		t.Errorf("Name = %q", w.Name)
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writePipeline(t, `
jobs:
  - {name: twin, label: l, executable: run}
  - {name: twin, label: l, executable: run}
`)
	if _, err := Load(path, config.New(map[string]any{"operator": "me"})); err == nil {
		t.Fatal("duplicate job names should error")
	}
}

func TestLoadRejectsUnknownEdgeEndpoint(t *testing.T) {
	path := writePipeline(t, `
jobs:
  - {name: a, label: l, executable: run}
edges:
  - {parent: a, child: ghost}
`)
	if _, err := Load(path, config.New(map[string]any{"operator": "me"})); err == nil {
		t.Fatal("edge to unknown job should error")
	}
}

func TestLoadRejectsTwoFinals(t *testing.T) {
	path := writePipeline(t, `
jobs:
  - {name: a, label: l, executable: run, final: true}
  - {name: b, label: l, executable: run, final: true}
`)
	if _, err := Load(path, config.New(map[string]any{"operator": "me"})); err == nil {
		t.Fatal("two final jobs should error")
	}
}

func TestLoadRejectsEmptyPipeline(t *testing.T) {
	path := writePipeline(t, "name: empty\n")
	if _, err := Load(path, config.New(nil)); err == nil {
		t.Fatal("pipeline with no jobs should error")
	}
}
