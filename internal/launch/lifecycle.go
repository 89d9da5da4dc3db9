package launch

import (
	"fmt"
	"syscall"

	"github.com/minimario/symlaunch/pkg/models"
)

// DetermineExitReason classifies a process exit
func DetermineExitReason(exitCode int, waitStatus syscall.WaitStatus) models.ExitReason {
	if waitStatus.Exited() {
		switch {
		case exitCode == 0:
			return models.ExitReasonSuccess
		case exitCode == 137 || exitCode == 143:
			// SIGKILL/SIGTERM exit codes, typically the OOM killer on
			// memory-hungry training runs
			return models.ExitReasonOOM
		default:
			return models.ExitReasonError
		}
	}

	if waitStatus.Signaled() {
		return models.ExitReasonSignal
	}

	return models.ExitReasonUnknown
}

// SignalName returns a readable name for a signal number
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}
