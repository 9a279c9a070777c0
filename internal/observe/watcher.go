// Package observe reads what the operating system knows about a launched
// child. It only looks; it never signals or waits.
package observe

import "github.com/shirou/gopsutil/v3/process"

// Watcher observes a PID.
type Watcher struct {
	pid  int
	proc *process.Process
}

// New creates a watcher for a PID. It fails if the process is already gone.
func New(pid int) (*Watcher, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	return &Watcher{
		pid:  pid,
		proc: proc,
	}, nil
}

// PID returns the watched process id.
func (w *Watcher) PID() int { return w.pid }

// Exists checks if PID still exists
func (w *Watcher) Exists() bool {
	running, err := w.proc.IsRunning()
	return err == nil && running
}

// Cmdline returns the argv the process is running with.
func (w *Watcher) Cmdline() ([]string, error) {
	return w.proc.CmdlineSlice()
}

// Cmdline returns the argv of pid, or nil if it cannot be read.
// A child that has already exited has no command line left to read.
func Cmdline(pid int) []string {
	w, err := New(pid)
	if err != nil || !w.Exists() {
		return nil
	}
	argv, err := w.Cmdline()
	if err != nil || len(argv) == 0 {
		return nil
	}
	return argv
}
