package launch

import (
	"fmt"
	"os"
	"syscall"
)

// ExitReason describes why a child terminated
type ExitReason string

const (
	ExitReasonSuccess ExitReason = "success" // Exit code 0
	ExitReasonError   ExitReason = "error"   // Exit code != 0
	ExitReasonSignal  ExitReason = "signal"  // Killed by signal
	ExitReasonUnknown ExitReason = "unknown"
)

// DetermineExitReason analyzes process exit to determine the reason
func DetermineExitReason(exitCode int, waitStatus syscall.WaitStatus) ExitReason {
	if waitStatus.Exited() {
		if exitCode == 0 {
			return ExitReasonSuccess
		}
		return ExitReasonError
	}

	if waitStatus.Signaled() {
		return ExitReasonSignal
	}

	return ExitReasonUnknown
}

// SignalName returns the signal name for a signal number
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
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}

// IsSuccess returns true if the exit represents success
func (r ExitReason) IsSuccess() bool {
	return r == ExitReasonSuccess
}

// WaitStatus returns the raw wait status once the child has exited.
func (c *Child) WaitStatus() (syscall.WaitStatus, bool) {
	if c.cmd.ProcessState == nil {
		return 0, false
	}
	status, ok := c.cmd.ProcessState.Sys().(syscall.WaitStatus)
	return status, ok
}

// Signal returns the name of the signal that terminated the child, if any.
func (c *Child) Signal() string {
	status, ok := c.WaitStatus()
	if !ok || !status.Signaled() {
		return ""
	}
	return SignalName(status.Signal())
}

// SendSignal delivers sig to the child.
func (c *Child) SendSignal(sig os.Signal) error {
	return c.cmd.Process.Signal(sig)
}
