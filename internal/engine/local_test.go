package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/gridflow/internal/logging"
	"github.com/me/gridflow/internal/site"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Workflow: "test",
		Pools: []site.Pool{
			{Label: "local", Provider: site.ProviderLocal, MaxWorkers: 4},
		},
		Logger: logging.Discard(),
	}
}

func TestSubmitRunsCommand(t *testing.T) {
	eng, err := NewLocal(testOptions(t))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	out := filepath.Join(t.TempDir(), "logs", "hello.stdout")
	h, err := eng.Submit(context.Background(), TaskSpec{
		Name:    "hello",
		Pool:    "local",
		Command: "echo hello",
		Stdout:  out,
	}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(data)) != "hello" {
		t.Errorf("stdout = %q, want hello", data)
	}
}

func TestSubmitOrdering(t *testing.T) {
	eng, err := NewLocal(testOptions(t))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer eng.Close()

	marker := filepath.Join(t.TempDir(), "marker")
	ctx := context.Background()

	first, err := eng.Submit(ctx, TaskSpec{
		Name:    "first",
		Pool:    "local",
		Command: "sleep 0.1 && touch " + marker,
	}, nil)
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	second, err := eng.Submit(ctx, TaskSpec{
		Name:    "second",
		Pool:    "local",
		Command: "test -f " + marker,
	}, []Handle{first})
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}

	if err := second.Wait(); err != nil {
		t.Fatalf("second should run after first created the marker: %v", err)
	}
}

func TestFailurePropagatesToDependents(t *testing.T) {
	eng, err := NewLocal(testOptions(t))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	bad, err := eng.Submit(ctx, TaskSpec{Name: "bad", Pool: "local", Command: "false"}, nil)
	if err != nil {
		t.Fatalf("Submit bad: %v", err)
	}
	child, err := eng.Submit(ctx, TaskSpec{Name: "child", Pool: "local", Command: "true"}, []Handle{bad})
	if err != nil {
		t.Fatalf("Submit child: %v", err)
	}

	if err := bad.Wait(); err == nil {
		t.Fatal("failing command should resolve with an error")
	}
	err = child.Wait()
	if err == nil {
		t.Fatal("dependent of a failed task should fail")
	}
	if !strings.Contains(err.Error(), "dependency bad failed") {
		t.Errorf("error = %v, want dependency failure naming the task", err)
	}

	done, failed, total := eng.Progress()
	if done != 0 || failed != 2 || total != 2 {
		t.Errorf("Progress = (%d, %d, %d), want (0, 2, 2)", done, failed, total)
	}
}

func TestSubmitUnknownPool(t *testing.T) {
	eng, err := NewLocal(testOptions(t))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer eng.Close()

	if _, err := eng.Submit(context.Background(), TaskSpec{Name: "x", Pool: "gpu", Command: "true"}, nil); err == nil {
		t.Fatal("unknown pool should error at submit time")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	eng, err := NewLocal(testOptions(t))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := eng.Submit(context.Background(), TaskSpec{Name: "x", Pool: "local", Command: "true"}, nil); err == nil {
		t.Fatal("submit after close should error")
	}
	if err := eng.Close(); err == nil {
		t.Fatal("closing twice should error")
	}
}

func TestCheckpointSkipsCompletedTasks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoint.db")
	witness := filepath.Join(t.TempDir(), "witness")

	opts := testOptions(t)
	opts.CheckpointPath = dbPath

	eng, err := NewLocal(opts)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	h, err := eng.Submit(context.Background(), TaskSpec{
		Name:    "step",
		Pool:    "local",
		Command: "echo once >> " + witness,
	}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A restarted engine reusing the checkpoint must not rerun the task.
	opts.ReuseCheckpoint = true
	eng, err = NewLocal(opts)
	if err != nil {
		t.Fatalf("NewLocal restart: %v", err)
	}
	h, err = eng.Submit(context.Background(), TaskSpec{
		Name:    "step",
		Pool:    "local",
		Command: "echo once >> " + witness,
	}, nil)
	if err != nil {
		t.Fatalf("Submit restart: %v", err)
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait restart: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close restart: %v", err)
	}

	data, err := os.ReadFile(witness)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.Count(string(data), "once"); got != 1 {
		t.Errorf("task ran %d times, want exactly once", got)
	}
}

func TestFreshRunClearsCheckpoint(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoint.db")
	witness := filepath.Join(t.TempDir(), "witness")

	opts := testOptions(t)
	opts.CheckpointPath = dbPath

	run := func() {
		eng, err := NewLocal(opts)
		if err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
		h, err := eng.Submit(context.Background(), TaskSpec{
			Name:    "step",
			Pool:    "local",
			Command: "echo run >> " + witness,
		}, nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := h.Wait(); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if err := eng.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	run()
	run()

	data, err := os.ReadFile(witness)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.Count(string(data), "run"); got != 2 {
		t.Errorf("task ran %d times across fresh runs, want 2", got)
	}
}
