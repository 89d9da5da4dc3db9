package models

import (
	"fmt"
	"time"
)

// LaunchState represents the lifecycle state of a launched training process
type LaunchState string

const (
	StateUnknown   LaunchState = "unknown"
	StatePending   LaunchState = "pending"
	StateStarting  LaunchState = "starting"
	StateRunning   LaunchState = "running"
	StateCompleted LaunchState = "completed"
	StateFailed    LaunchState = "failed"
	StateKilled    LaunchState = "killed"
)

// ExitReason describes why a launched process terminated
type ExitReason string

const (
	ExitReasonSuccess ExitReason = "success" // Exit code 0
	ExitReasonError   ExitReason = "error"   // Exit code != 0
	ExitReasonSignal  ExitReason = "signal"  // Killed by signal
	ExitReasonOOM     ExitReason = "oom"     // Out of memory killed
	ExitReasonUnknown ExitReason = "unknown"
)

// IsSuccess returns true if the exit represents success
func (r ExitReason) IsSuccess() bool {
	return r == ExitReasonSuccess
}

// TrainSpec holds the typed parameters of one training run. Zero-valued
// optional fields are omitted from the generated command line.
type TrainSpec struct {
	Problem   string `json:"problem" yaml:"problem"`
	GraphSize int    `json:"graph_size" yaml:"graph_size"`
	NAug      int    `json:"n_aug" yaml:"n_aug"`

	// Equivariance supervision (optional; both must be set together)
	SuperviseLambda    float64 `json:"supervise_lambda,omitempty" yaml:"supervise_lambda,omitempty"`
	EquivariantSamples int     `json:"num_equivariant_samples,omitempty" yaml:"num_equivariant_samples,omitempty"`

	// Optional overrides
	Epochs    int    `json:"epochs,omitempty" yaml:"epochs,omitempty"`
	BatchSize int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Seed      int    `json:"seed,omitempty" yaml:"seed,omitempty"`
	LogName   string `json:"log_name,omitempty" yaml:"log_name,omitempty"` // derived when empty
}

// Supervised reports whether the run trains with equivariance supervision
func (s TrainSpec) Supervised() bool {
	return s.SuperviseLambda > 0 || s.EquivariantSamples > 0
}

// Validate checks the spec for fields the trainer cannot default
func (s TrainSpec) Validate() error {
	if s.Problem == "" {
		return fmt.Errorf("train spec: problem is required")
	}
	if s.GraphSize <= 0 {
		return fmt.Errorf("train spec: graph_size must be positive, got %d", s.GraphSize)
	}
	if s.NAug < 0 {
		return fmt.Errorf("train spec: n_aug must be non-negative, got %d", s.NAug)
	}
	if s.SuperviseLambda < 0 {
		return fmt.Errorf("train spec: supervise_lambda must be non-negative, got %v", s.SuperviseLambda)
	}
	if s.SuperviseLambda > 0 && s.EquivariantSamples <= 0 {
		return fmt.Errorf("train spec: supervise_lambda requires num_equivariant_samples")
	}
	return nil
}

// LaunchSpec is the explicit per-launch configuration. Every launch carries
// its own device binding and environment; nothing is inherited through
// ambient mutable state.
type LaunchSpec struct {
	// GPU is the device index exported to the child as CUDA_VISIBLE_DEVICES.
	GPU int `json:"gpu" yaml:"gpu"`

	Train TrainSpec `json:"train" yaml:"train"`

	// Extra environment entries for this launch only (KEY=VALUE resolved
	// on top of the parent environment).
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	WorkDir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`
}

// Plan is an ordered sequence of launches with a stagger interval between
// consecutive starts.
type Plan struct {
	// Python is the interpreter used to run the training script.
	Python string `json:"python" yaml:"python"`
	// Script is the training entrypoint passed to the interpreter.
	Script string `json:"script" yaml:"script"`

	// Stagger is the pause between consecutive launches. The first process
	// gets this much head start before its sibling spawns.
	Stagger time.Duration `json:"stagger" yaml:"stagger"`

	Launches []LaunchSpec `json:"launches" yaml:"launches"`
}

// Validate checks the plan and every launch in it
func (p Plan) Validate() error {
	if p.Script == "" {
		return fmt.Errorf("plan: script is required")
	}
	if p.Stagger < 0 {
		return fmt.Errorf("plan: stagger must be non-negative, got %v", p.Stagger)
	}
	if len(p.Launches) == 0 {
		return fmt.Errorf("plan: no launches defined")
	}
	for i, l := range p.Launches {
		if l.GPU < 0 {
			return fmt.Errorf("plan: launch %d: gpu index must be non-negative, got %d", i, l.GPU)
		}
		if err := l.Train.Validate(); err != nil {
			return fmt.Errorf("plan: launch %d: %w", i, err)
		}
	}
	return nil
}

// LaunchStatus is a point-in-time snapshot of one launched process,
// serialized by the status API.
type LaunchStatus struct {
	Index      int         `json:"index"`
	LogName    string      `json:"log_name"`
	GPU        int         `json:"gpu"`
	PID        int         `json:"pid,omitempty"`
	State      LaunchState `json:"state"`
	ExitCode   int         `json:"exit_code,omitempty"`
	ExitReason ExitReason  `json:"exit_reason,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// LaunchEvent records a lifecycle state change for one launch
type LaunchEvent struct {
	PID       int         `json:"pid"`
	State     LaunchState `json:"state"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
}
