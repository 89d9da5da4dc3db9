package launch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/minimario/symlaunch/pkg/logging"
	"github.com/minimario/symlaunch/pkg/models"
)

func testLogger() *logging.Logger {
	l := logging.New(logging.ERROR, false)
	l.SetOutput(os.Stderr)
	return l
}

// writeScript drops a shell script into dir and returns its path
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake_train.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitDone(t *testing.T, h *Handle) models.LaunchStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	return st
}

// Each launch must see the device selector set for that launch only
func TestStartInjectsDeviceSelector(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `echo "device=$CUDA_VISIBLE_DEVICES"`)
	logDir := t.TempDir()

	r := NewRunner(testLogger(), logDir)

	for _, gpuIdx := range []int{0, 3} {
		spec := models.LaunchSpec{GPU: gpuIdx, Train: models.TrainSpec{
			Problem: "cvrp", GraphSize: 20, NAug: 2,
			LogName: "dev-" + string(rune('0'+gpuIdx)),
		}}

		h, err := r.Start(context.Background(), gpuIdx, "", script, spec)
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		waitDone(t, h)

		data, err := os.ReadFile(h.LogPath())
		if err != nil {
			t.Fatal(err)
		}
		want := "device=" + string(rune('0'+gpuIdx))
		if !strings.Contains(string(data), want) {
			t.Errorf("gpu %d: run log missing %q, got %q", gpuIdx, want, string(data))
		}
	}
}

func TestStartAppliesExtraEnv(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `echo "extra=$WANDB_MODE"`)

	r := NewRunner(testLogger(), t.TempDir())
	spec := models.LaunchSpec{
		GPU:   0,
		Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2},
		Env:   map[string]string{"WANDB_MODE": "offline"},
	}

	h, err := r.Start(context.Background(), 0, "", script, spec)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitDone(t, h)

	data, err := os.ReadFile(h.LogPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "extra=offline") {
		t.Errorf("expected extra env in child, got %q", string(data))
	}
}

// Start must return before the child finishes
func TestStartDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sleep 5")

	r := NewRunner(testLogger(), t.TempDir())
	spec := models.LaunchSpec{Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2}}

	started := time.Now()
	h, err := r.Start(context.Background(), 0, "", script, spec)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("Start blocked for %v", elapsed)
	}

	st := h.Status()
	if st.State != models.StateRunning {
		t.Errorf("expected running state, got %s", st.State)
	}
	if st.PID == 0 {
		t.Error("expected a pid")
	}

	if err := h.Signal(syscall.SIGKILL); err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	final := waitDone(t, h)
	if final.State != models.StateKilled {
		t.Errorf("expected killed state, got %s", final.State)
	}
	if final.ExitReason != models.ExitReasonSignal {
		t.Errorf("expected signal exit reason, got %s", final.ExitReason)
	}
}

func TestExitClassification(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(testLogger(), t.TempDir())

	t.Run("success", func(t *testing.T) {
		script := writeScript(t, dir, "exit 0")
		h, err := r.Start(context.Background(), 0, "", script,
			models.LaunchSpec{Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2}})
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		st := waitDone(t, h)
		if st.State != models.StateCompleted || st.ExitReason != models.ExitReasonSuccess {
			t.Errorf("expected completed/success, got %s/%s", st.State, st.ExitReason)
		}
	})

	t.Run("failure", func(t *testing.T) {
		script := writeScript(t, dir, "exit 3")
		h, err := r.Start(context.Background(), 0, "", script,
			models.LaunchSpec{Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2}})
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}
		st := waitDone(t, h)
		if st.State != models.StateFailed {
			t.Errorf("expected failed state, got %s", st.State)
		}
		if st.ExitCode != 3 {
			t.Errorf("expected exit code 3, got %d", st.ExitCode)
		}
		if st.ExitReason != models.ExitReasonError {
			t.Errorf("expected error reason, got %s", st.ExitReason)
		}
	})
}

func TestStartMissingExecutable(t *testing.T) {
	r := NewRunner(testLogger(), t.TempDir())
	_, err := r.Start(context.Background(), 0, "", filepath.Join(t.TempDir(), "does-not-exist"),
		models.LaunchSpec{Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2}})
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	r := NewRunner(testLogger(), "")
	_, err := r.Start(context.Background(), 0, "", "/bin/true",
		models.LaunchSpec{Train: models.TrainSpec{Problem: "", GraphSize: 20}})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

// The child receives the full training argv after the script path
func TestStartPassesTrainingArgs(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `echo "argv=$@"`)

	r := NewRunner(testLogger(), t.TempDir())
	h, err := r.Start(context.Background(), 0, "", script,
		models.LaunchSpec{Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2}})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitDone(t, h)

	data, err := os.ReadFile(h.LogPath())
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"--problem cvrp", "--graph_size 20", "--log_name sym-nco-am-cvrp20"} {
		if !strings.Contains(out, want) {
			t.Errorf("child argv missing %q: %s", want, out)
		}
	}
}

func TestHandleEvents(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "exit 0")

	r := NewRunner(testLogger(), t.TempDir())
	h, err := r.Start(context.Background(), 0, "", script,
		models.LaunchSpec{Train: models.TrainSpec{Problem: "cvrp", GraphSize: 20, NAug: 2}})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitDone(t, h)

	events := h.Events()
	if len(events) < 2 {
		t.Fatalf("expected at least running+completed events, got %v", events)
	}
	last := events[len(events)-1]
	if last.State != models.StateCompleted {
		t.Errorf("expected final event completed, got %s", last.State)
	}
}
