package launch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/minimario/symlaunch/pkg/logging"
	"github.com/minimario/symlaunch/pkg/models"
)

// deviceSelectorVar names the GPU a spawned trainer binds to
const deviceSelectorVar = "CUDA_VISIBLE_DEVICES"

// Runner spawns training processes as detached background tasks. The
// spawned process is placed in its own process group so it keeps running
// after the launcher exits; the returned Handle is the only link back to it.
type Runner struct {
	log    *logging.Logger
	logDir string // per-run stdout/stderr capture dir, "" inherits the launcher's streams
}

// NewRunner creates a runner. logDir may be empty to forward child output
// to the launcher's own stdout/stderr.
func NewRunner(log *logging.Logger, logDir string) *Runner {
	return &Runner{log: log, logDir: logDir}
}

// Start spawns one training process and returns immediately with a Handle.
// The caller may ignore the handle entirely (fire-and-forget), await it, or
// signal it; a background reaper records the outcome either way.
func (r *Runner) Start(ctx context.Context, index int, python, script string, spec models.LaunchSpec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch %d not started: %w", index, err)
	}
	if err := spec.Train.Validate(); err != nil {
		return nil, fmt.Errorf("launch %d: %w", index, err)
	}

	logName := LogName(spec.Train)
	args := BuildArgs(spec.Train)

	var cmd *exec.Cmd
	if python != "" {
		cmd = exec.Command(python, append([]string{script}, args...)...)
	} else {
		cmd = exec.Command(script, args...)
	}
	cmd.Dir = spec.WorkDir
	cmd.Env = buildEnv(spec)

	// New process group: the trainer must survive launcher exit. This is
	// what makes the detach real rather than an accident of scheduling.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}

	h := &Handle{
		index:   index,
		gpu:     spec.GPU,
		logName: logName,
		state:   models.StateStarting,
		done:    make(chan struct{}),
	}

	var logFile *os.File
	if r.logDir != "" {
		if err := os.MkdirAll(r.logDir, 0o755); err != nil {
			return nil, fmt.Errorf("launch %d: failed to create run log dir: %w", index, err)
		}
		path := filepath.Join(r.logDir, logName+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("launch %d: failed to open run log %s: %w", index, path, err)
		}
		logFile = f
		h.logPath = path
		cmd.Stdout = f
		cmd.Stderr = f
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	r.log.Info("starting launch", map[string]interface{}{
		"index":    index,
		"gpu":      spec.GPU,
		"log_name": logName,
		"argv":     cmd.Args,
	})

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		h.record(models.StateFailed, fmt.Sprintf("failed to start: %v", err))
		return nil, fmt.Errorf("launch %d (%s): failed to start: %w", index, logName, err)
	}

	now := time.Now()
	h.mu.Lock()
	h.cmd = cmd
	h.pid = cmd.Process.Pid
	h.startedAt = &now
	h.mu.Unlock()
	h.record(models.StateRunning, fmt.Sprintf("pid %d started", cmd.Process.Pid))

	r.log.Info("launch running", map[string]interface{}{
		"index": index, "pid": cmd.Process.Pid, "gpu": spec.GPU,
	})

	go r.reap(h, logFile)
	return h, nil
}

// reap waits for process exit and records the outcome on the handle
func (r *Runner) reap(h *Handle, logFile *os.File) {
	err := h.cmd.Wait()
	if logFile != nil {
		logFile.Close()
	}

	finished := time.Now()
	h.mu.Lock()
	h.finishedAt = &finished
	h.mu.Unlock()

	if err == nil {
		h.setExit(0, models.ExitReasonSuccess)
		h.record(models.StateCompleted, "completed")
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		reason := models.ExitReasonError
		state := models.StateFailed
		msg := fmt.Sprintf("exited with code %d", code)
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			reason = DetermineExitReason(code, status)
			if status.Signaled() {
				state = models.StateKilled
				msg = fmt.Sprintf("killed by %s", SignalName(status.Signal()))
			}
		}
		h.setExit(code, reason)
		h.record(state, msg)
	} else {
		h.setExit(-1, models.ExitReasonUnknown)
		h.record(models.StateFailed, fmt.Sprintf("wait error: %v", err))
	}

	st := h.Status()
	r.log.Info("launch finished", map[string]interface{}{
		"index": st.Index, "pid": st.PID, "exit_code": st.ExitCode, "reason": string(st.ExitReason),
	})

	close(h.done)
}

// buildEnv resolves the child environment: parent environment, then the
// device selector, then per-launch extras. Later entries win, so the
// explicit per-launch values always override inherited ones.
func buildEnv(spec models.LaunchSpec) []string {
	env := append(os.Environ(), fmt.Sprintf("%s=%d", deviceSelectorVar, spec.GPU))

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, spec.Env[k]))
	}
	return env
}

// Handle is the launcher's view of one spawned training process
type Handle struct {
	index   int
	gpu     int
	logName string
	logPath string

	cmd  *exec.Cmd
	done chan struct{}

	mu         sync.Mutex
	pid        int
	state      models.LaunchState
	exitCode   int
	exitReason models.ExitReason
	startedAt  *time.Time
	finishedAt *time.Time
	errMsg     string
	events     []models.LaunchEvent
}

// PID returns the spawned process's pid
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// LogName returns the run's derived log name
func (h *Handle) LogName() string {
	return h.logName
}

// LogPath returns the path capturing the run's output, if any
func (h *Handle) LogPath() string {
	return h.logPath
}

// Done returns a channel closed when the process has exited and its
// outcome has been recorded
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits or ctx is cancelled. Cancellation
// abandons the wait only; the process itself keeps running.
func (h *Handle) Wait(ctx context.Context) (models.LaunchStatus, error) {
	select {
	case <-h.done:
		return h.Status(), nil
	case <-ctx.Done():
		return h.Status(), ctx.Err()
	}
}

// Signal delivers a signal to the spawned process
func (h *Handle) Signal(sig os.Signal) error {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("launch %d: no process to signal", h.index)
	}
	return cmd.Process.Signal(sig)
}

// Status returns a point-in-time snapshot
func (h *Handle) Status() models.LaunchStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return models.LaunchStatus{
		Index:      h.index,
		LogName:    h.logName,
		GPU:        h.gpu,
		PID:        h.pid,
		State:      h.state,
		ExitCode:   h.exitCode,
		ExitReason: h.exitReason,
		StartedAt:  h.startedAt,
		FinishedAt: h.finishedAt,
		Error:      h.errMsg,
	}
}

// Events returns the lifecycle event trail so far
func (h *Handle) Events() []models.LaunchEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.LaunchEvent, len(h.events))
	copy(out, h.events)
	return out
}

func (h *Handle) record(state models.LaunchState, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
	if state == models.StateFailed {
		h.errMsg = message
	}
	h.events = append(h.events, models.LaunchEvent{
		PID:       h.pid,
		State:     state,
		Timestamp: time.Now(),
		Message:   message,
	})
}

func (h *Handle) setExit(code int, reason models.ExitReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitCode = code
	h.exitReason = reason
}
