// Package payload defines the unit of work injected into a child process,
// the envelope it travels in and the codec that moves it across.
//
// A payload is any registered type implementing Payload. Its exported fields
// are the captured state; its registered type name is the code reference the
// child uses to rebuild it. Both parent and child must register the type,
// which holds naturally when the child is the same binary.
package payload

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// Payload is a unit of work run in the child before its program starts.
type Payload interface {
	Run(rt *Runtime) error
}

// Runtime holds the handles a payload may replace and the program that
// follows should write through.
type Runtime struct {
	Stdout io.Writer
	Stderr io.Writer

	// Args are the child's own arguments, after the loader consumed its own.
	Args []string
}

// NewRuntime returns a Runtime bound to the process standard streams.
func NewRuntime() *Runtime {
	return &Runtime{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Func is a payload body registered by name, see Call.
type Func func(rt *Runtime, args map[string]string) error

var (
	funcsMu sync.RWMutex
	funcs   = make(map[string]Func)
)

// RegisterFunc makes fn reachable by name from a Call payload.
// It panics if name is empty, fn is nil or name is already taken.
func RegisterFunc(name string, fn Func) {
	if name == "" || fn == nil {
		panic("payload: invalid function registration")
	}

	funcsMu.Lock()
	defer funcsMu.Unlock()

	if _, ok := funcs[name]; ok {
		panic("payload: function " + name + " registered twice")
	}
	funcs[name] = fn
}

func lookupFunc(name string) (Func, bool) {
	funcsMu.RLock()
	defer funcsMu.RUnlock()
	fn, ok := funcs[name]
	return fn, ok
}

// Funcs returns the sorted names of registered functions.
func Funcs() []string {
	funcsMu.RLock()
	defer funcsMu.RUnlock()

	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes a function registered with RegisterFunc.
type Call struct {
	Name string            `json:"name" yaml:"name"`
	Args map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
}

func (c *Call) Run(rt *Runtime) error {
	fn, ok := lookupFunc(c.Name)
	if !ok {
		return fmt.Errorf("payload: function %q is not registered", c.Name)
	}
	return fn(rt, c.Args)
}

// Sequence runs its steps in order and stops at the first error.
type Sequence struct {
	Steps []Payload `json:"steps" yaml:"steps"`
}

func (s *Sequence) Run(rt *Runtime) error {
	for i, step := range s.Steps {
		if step == nil {
			continue
		}
		if err := step.Run(rt); err != nil {
			return fmt.Errorf("step %d (%T): %w", i, step, err)
		}
	}
	return nil
}
