// Package launch is the process spawning primitive spree builds on.
//
// Launcher is the seam: anything that starts processes through a Launcher
// can be handed an interceptor instead without other changes.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"
)

// ErrEmptyArgv is returned for a launch request without an executable.
var ErrEmptyArgv = errors.New("empty argv")

// Options are the auxiliary spawn options. They are passed through untouched.
type Options struct {
	Env    []string // nil inherits the parent environment
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ExtraFiles, SysProcAttr and WaitDelay behave as their exec.Cmd counterparts.
	ExtraFiles  []*os.File
	SysProcAttr *syscall.SysProcAttr
	WaitDelay   time.Duration
}

// Launcher starts a child process from argv, where argv[0] names the executable.
type Launcher interface {
	Launch(ctx context.Context, argv []string, opts *Options) (*Child, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, argv []string, opts *Options) (*Child, error)

func (f LauncherFunc) Launch(ctx context.Context, argv []string, opts *Options) (*Child, error) {
	return f(ctx, argv, opts)
}

// SpawnError is returned when a child cannot be started.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	if len(e.Argv) == 0 {
		return "spawn: " + e.Err.Error()
	}
	return fmt.Sprintf("spawn %s: %v", e.Argv[0], e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Exec launches children with os/exec.
type Exec struct{}

func (Exec) Launch(ctx context.Context, argv []string, opts *Options) (*Child, error) {
	if len(argv) == 0 {
		return nil, &SpawnError{Err: ErrEmptyArgv}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if opts != nil {
		cmd.Env = opts.Env
		cmd.Dir = opts.Dir
		cmd.Stdin, cmd.Stdout, cmd.Stderr = opts.Stdin, opts.Stdout, opts.Stderr
		cmd.ExtraFiles = opts.ExtraFiles
		cmd.SysProcAttr = opts.SysProcAttr
		cmd.WaitDelay = opts.WaitDelay
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Argv: argv, Err: err}
	}

	return &Child{
		cmd:       cmd,
		argv:      slices.Clone(argv),
		StartedAt: time.Now(),
		exitCode:  -1,
		reason:    ExitReasonUnknown,
	}, nil
}

// Run launches argv through l and waits for it to exit.
// The returned error is that of Child.Wait when the child started.
func Run(ctx context.Context, l Launcher, argv []string, opts *Options) (*Child, error) {
	child, err := l.Launch(ctx, argv, opts)
	if err != nil {
		return nil, err
	}
	return child, child.Wait()
}

// Child is a started process. Wait may be called from any goroutine.
type Child struct {
	cmd  *exec.Cmd
	argv []string

	StartedAt time.Time
	ExitedAt  time.Time

	waitOnce sync.Once
	waitErr  error
	exitCode int
	reason   ExitReason
}

// Pid returns the process id of the child.
func (c *Child) Pid() int { return c.cmd.Process.Pid }

// Argv returns the argv the child was actually started with.
func (c *Child) Argv() []string { return c.argv }

// Wait waits for the child to exit. Repeated calls return the first result.
func (c *Child) Wait() error {
	c.waitOnce.Do(c.wait)
	return c.waitErr
}

func (c *Child) wait() {
	c.waitErr = c.cmd.Wait()
	c.ExitedAt = time.Now()

	state := c.cmd.ProcessState
	if state == nil {
		return
	}
	c.exitCode = state.ExitCode()
	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		c.reason = DetermineExitReason(c.exitCode, status)
	}
}

// ExitCode returns the exit code, or -1 if the child has not exited
// or was terminated by a signal.
func (c *Child) ExitCode() int { return c.exitCode }

// Reason returns why the child terminated.
func (c *Child) Reason() ExitReason { return c.reason }

// Duration returns how long the child ran, or has been running.
func (c *Child) Duration() time.Duration {
	if c.ExitedAt.IsZero() {
		return time.Since(c.StartedAt)
	}
	return c.ExitedAt.Sub(c.StartedAt)
}
