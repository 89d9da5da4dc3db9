package launch

import (
	"context"
	"fmt"
	"time"

	"github.com/minimario/symlaunch/pkg/logging"
	"github.com/minimario/symlaunch/pkg/models"
)

// Orchestrator executes a launch plan: start, stagger, start, in order.
// It never restarts or supervises a launch beyond holding its handle.
type Orchestrator struct {
	runner  *Runner
	log     *logging.Logger
	metrics Recorder
	onStart func(*Handle)
}

// Recorder receives launch lifecycle notifications (e.g. for metrics).
// A nil Recorder is valid.
type Recorder interface {
	LaunchStarted(gpu int, logName string)
	LaunchFailed(logName string)
	LaunchFinished()
}

// NewOrchestrator creates an orchestrator around a runner
func NewOrchestrator(runner *Runner, log *logging.Logger, metrics Recorder) *Orchestrator {
	return &Orchestrator{runner: runner, log: log, metrics: metrics}
}

// NotifyStart registers fn to be called with each handle as its launch
// starts, before the stagger to the next one. Observers see a launch as
// soon as it is running, not when the whole plan has been issued.
func (o *Orchestrator) NotifyStart(fn func(*Handle)) {
	o.onStart = fn
}

// Run starts every launch in the plan with the plan's stagger between
// consecutive starts. The first spawn error stops further launches and is
// returned alongside the handles already running; running launches are
// never torn down on a sibling's failure.
func (o *Orchestrator) Run(ctx context.Context, plan models.Plan) ([]*Handle, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	handles := make([]*Handle, 0, len(plan.Launches))
	for i, spec := range plan.Launches {
		if i > 0 && plan.Stagger > 0 {
			o.log.Debug("staggering next launch", map[string]interface{}{"pause": plan.Stagger.String()})
			if err := sleep(ctx, plan.Stagger); err != nil {
				return handles, fmt.Errorf("plan interrupted before launch %d: %w", i, err)
			}
		}

		h, err := o.runner.Start(ctx, i, plan.Python, plan.Script, spec)
		if err != nil {
			if o.metrics != nil {
				o.metrics.LaunchFailed(LogName(spec.Train))
			}
			o.log.Error("launch failed to start", map[string]interface{}{"index": i, "error": err.Error()})
			return handles, err
		}
		if o.metrics != nil {
			o.metrics.LaunchStarted(spec.GPU, h.LogName())
			go func(h *Handle) {
				<-h.Done()
				o.metrics.LaunchFinished()
			}(h)
		}
		if o.onStart != nil {
			o.onStart(h)
		}
		handles = append(handles, h)
	}

	return handles, nil
}

// WaitAll blocks until every handle has finished or ctx is cancelled.
// It returns the final snapshots in launch order.
func WaitAll(ctx context.Context, handles []*Handle) ([]models.LaunchStatus, error) {
	statuses := make([]models.LaunchStatus, len(handles))
	for i, h := range handles {
		st, err := h.Wait(ctx)
		statuses[i] = st
		if err != nil {
			return statuses, err
		}
	}
	return statuses, nil
}

// sleep pauses for d, honoring context cancellation
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
