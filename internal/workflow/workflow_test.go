package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/gridflow/internal/config"
	"github.com/me/gridflow/internal/engine"
	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/pkg/model"
)

func testLogger() *slog.Logger {
	return logging.Discard()
}

func testConfig(submitPath string) *config.Config {
	return config.New(map[string]any{
		"project":     "survey",
		"campaign":    "dr1",
		"computeSite": "here",
		"submitPath":  submitPath,
		"site": map[string]any{
			"here": map[string]any{"class": "local", "cores": 2},
		},
	})
}

func echoJob(name, label string) *model.GenericJob {
	return &model.GenericJob{
		Name:       name,
		Label:      label,
		Executable: "echo",
		Arguments:  name,
	}
}

// diamond builds init -> a -> {b, c} -> d.
func diamond() *model.GenericWorkflow {
	g := model.NewGenericWorkflow("survey.dr1")
	for _, name := range []string{initialJobName, "a", "b", "c", "d"} {
		g.AddJob(echoJob(name, "stage"))
	}
	g.AddEdge(initialJobName, "a")
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")
	return g
}

// fakeEngine records submissions without running anything.
type fakeEngine struct {
	submitted map[string]int
	deps      map[string][]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{submitted: make(map[string]int), deps: make(map[string][]string)}
}

type fakeHandle struct{ name string }

func (h *fakeHandle) Name() string { return h.name }
func (h *fakeHandle) Wait() error  { return nil }

func (e *fakeEngine) Submit(_ context.Context, spec engine.TaskSpec, deps []engine.Handle) (engine.Handle, error) {
	e.submitted[spec.Name]++
	for _, d := range deps {
		e.deps[spec.Name] = append(e.deps[spec.Name], d.Name())
	}
	return &fakeHandle{name: spec.Name}, nil
}

func (e *fakeEngine) Progress() (int, int, int) { return 0, 0, len(e.submitted) }
func (e *fakeEngine) Close() error              { return nil }

func TestExecuteSubmitsEachJobOnce(t *testing.T) {
	w, err := New(diamond(), testConfig(t.TempDir()), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake := newFakeEngine()
	w.eng = fake

	if _, err := w.Execute(context.Background(), "d"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, name := range []string{"a", "b", "c", "d"} {
		if fake.submitted[name] != 1 {
			t.Errorf("job %s submitted %d times, want 1", name, fake.submitted[name])
		}
	}
	if fake.submitted[initialJobName] != 0 {
		t.Error("initial job must not reach the engine")
	}
	if got := fake.deps["d"]; len(got) != 2 {
		t.Errorf("d dependencies = %v, want b and c", got)
	}
	if got := fake.deps["a"]; len(got) != 0 {
		t.Errorf("a dependencies = %v, want none after the initial job is skipped", got)
	}
}

func TestExecuteUnknownJob(t *testing.T) {
	w, err := New(diamond(), testConfig(t.TempDir()), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.eng = newFakeEngine()
	if _, err := w.Execute(context.Background(), "ghost"); err == nil {
		t.Fatal("unknown job should error")
	}
}

func TestEndpointsAndParents(t *testing.T) {
	w, err := New(diamond(), testConfig(t.TempDir()), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(w.Endpoints) != 1 || w.Endpoints[0] != "d" {
		t.Errorf("Endpoints = %v, want [d]", w.Endpoints)
	}
	if got := w.Parents["d"]; len(got) != 2 {
		t.Errorf("Parents[d] = %v", got)
	}
}

func TestStartShutdownLifecycle(t *testing.T) {
	w, err := New(diamond(), testConfig(t.TempDir()), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.Shutdown(); err == nil {
		t.Fatal("shutdown before start should error")
	}
	if err := w.Run(context.Background(), true); err == nil {
		t.Fatal("run before start should error")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("starting twice should error")
	}
	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRunEndToEnd(t *testing.T) {
	out := t.TempDir()

	g := model.NewGenericWorkflow("survey.dr1")
	witness := filepath.Join(out, "witness")
	g.AddJob(&model.GenericJob{
		Name: "produce", Label: "stage",
		Executable: "echo", Arguments: "payload > " + witness,
	})
	g.AddJob(&model.GenericJob{
		Name: "consume", Label: "stage",
		Executable: "test", Arguments: "-f " + witness,
	})
	g.AddEdge("produce", "consume")
	g.SetFinal(&model.GenericJob{
		Name: "wrapup", Label: "final",
		Executable: "echo", Arguments: "done",
	})

	w, err := New(g, testConfig(out), out, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Run(context.Background(), true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !w.Final.Done {
		t.Error("final job should have run")
	}
	data, err := os.ReadFile(w.Final.Stdout)
	if err != nil {
		t.Fatalf("final stdout: %v", err)
	}
	if strings.TrimSpace(string(data)) != "done" {
		t.Errorf("final stdout = %q", data)
	}
}

func TestRunFinalizesAfterEndpointFailure(t *testing.T) {
	out := t.TempDir()

	g := model.NewGenericWorkflow("survey.dr1")
	g.AddJob(&model.GenericJob{Name: "broken", Label: "stage", Executable: "false"})
	g.SetFinal(&model.GenericJob{
		Name: "wrapup", Label: "final",
		Executable: "echo", Arguments: "done",
	})

	w, err := New(g, testConfig(out), out, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = w.Run(context.Background(), true)
	if err == nil {
		t.Fatal("failing endpoint should surface from Run")
	}
	if !w.Final.Done {
		t.Error("final job should run even when endpoints failed")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig("/out")

	g := diamond()
	g.GetJob("a").Tags = map[string]string{"visit": "42"}
	g.GetJob("a").Inputs = []model.File{{Name: "butlerConfig", Path: "/data/butler"}}
	g.SetFinal(echoJob("wrapup", "final"))

	w, err := New(g, cfg, out, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Jobs["a"].Done = true
	if err := w.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(out, testLogger())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Name != w.Name || got.Path != w.Path {
		t.Errorf("identity = (%q, %q), want (%q, %q)", got.Name, got.Path, w.Name, w.Path)
	}
	if len(got.Jobs) != len(w.Jobs) {
		t.Fatalf("len(Jobs) = %d, want %d", len(got.Jobs), len(w.Jobs))
	}
	a := got.Jobs["a"]
	if !a.Done {
		t.Error("completion state lost in round trip")
	}
	if a.Stdout != w.Jobs["a"].Stdout {
		t.Errorf("stdout path = %q, want %q", a.Stdout, w.Jobs["a"].Stdout)
	}
	if a.FilePaths["butlerConfig"] != "/data/butler" {
		t.Errorf("file paths = %v", a.FilePaths)
	}
	if got.Final == nil || got.Final.Generic.Name != "wrapup" {
		t.Error("final job lost in round trip")
	}
	if len(got.Parents["d"]) != 2 {
		t.Errorf("Parents[d] = %v", got.Parents["d"])
	}
	if len(got.Endpoints) != 1 || got.Endpoints[0] != "d" {
		t.Errorf("Endpoints = %v", got.Endpoints)
	}
}

func TestReadRejectsWrongVersion(t *testing.T) {
	out := t.TempDir()
	bad := `{"version": 99, "name": "x", "path": "/out", "config": {}, "jobs": {}}`
	if err := os.WriteFile(config.SnapshotFilename(out), []byte(bad), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Read(out, testLogger()); err == nil {
		t.Fatal("mismatched snapshot version should be rejected")
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	w, err := New(diamond(), testConfig(t.TempDir()), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake := newFakeEngine()
	w.eng = fake

	job := w.Jobs["a"]
	h1, err := job.Submit(context.Background(), fake, "local", nil, "", false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h2, err := job.Submit(context.Background(), fake, "local", nil, "", false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h1 != h2 {
		t.Error("resubmission should return the original handle")
	}
	if fake.submitted["a"] != 1 {
		t.Errorf("job submitted %d times, want 1", fake.submitted["a"])
	}
}

func TestSubmitSkipsDoneJob(t *testing.T) {
	w, err := New(diamond(), testConfig(t.TempDir()), t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake := newFakeEngine()
	w.eng = fake

	job := w.Jobs["a"]
	job.Done = true
	h, err := job.Submit(context.Background(), fake, "local", nil, "", false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h != nil {
		t.Error("done job should return a nil handle")
	}
	if fake.submitted["a"] != 0 {
		t.Error("done job must not reach the engine")
	}
}
