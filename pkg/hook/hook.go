// Package hook runs named preload modules before a program's own logic.
//
// A spree-aware binary calls Init as the first statement of main. When the
// process was started with argv of the form
//
//	exe -spree.preload <module> [module args...] [program args...]
//
// the module runs, consumes its own arguments and hands the rest back; the
// program then sees os.Args as if it had been started with the rest only.
package hook

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/psantana5/spree/pkg/payload"
)

// Flag marks an argv carrying a preload module.
const Flag = "-spree.preload"

// ExitFailure is the exit code used when a failing module does not pick one.
const ExitFailure = 2

// Module runs before the program. args are everything after the module name;
// rest are the arguments the module did not consume.
type Module func(rt *payload.Runtime, args []string) (rest []string, err error)

// ExitCoder is implemented by module errors that choose the exit code.
type ExitCoder interface {
	ExitCode() int
}

var (
	ErrNoModule      = errors.New("no preload module named")
	ErrUnknownModule = errors.New("unknown preload module")
)

var (
	modulesMu sync.RWMutex
	modules   = make(map[string]Module)
)

// Register makes m available under name. It panics on a nil module or a
// name registered twice.
func Register(name string, m Module) {
	if name == "" || m == nil {
		panic("hook: invalid module registration")
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	if _, ok := modules[name]; ok {
		panic("hook: module " + name + " registered twice")
	}
	modules[name] = m
}

// Lookup returns the module registered under name.
func Lookup(name string) (Module, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	m, ok := modules[name]
	return m, ok
}

// Modules returns the sorted names of registered modules.
func Modules() []string {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Command builds the argv that runs module with moduleArgs in exe before
// the program receives rest.
func Command(exe, module string, moduleArgs, rest []string) []string {
	argv := make([]string, 0, 3+len(moduleArgs)+len(rest))
	argv = append(argv, exe, Flag, module)
	argv = append(argv, moduleArgs...)
	return append(argv, rest...)
}

// Parse splits argv built by Command. ok is false when argv carries no
// preload flag.
func Parse(argv []string) (module string, args []string, ok bool) {
	if len(argv) < 2 || argv[1] != Flag {
		return "", nil, false
	}
	if len(argv) < 3 {
		return "", nil, true
	}
	return argv[2], argv[3:], true
}

// Run executes the preload module named in argv, if any.
// It returns the argv the program should see and whether a module ran.
func Run(argv []string, rt *payload.Runtime) ([]string, bool, error) {
	name, args, ok := Parse(argv)
	if !ok {
		return argv, false, nil
	}
	if name == "" {
		return nil, true, ErrNoModule
	}

	m, found := Lookup(name)
	if !found {
		return nil, true, fmt.Errorf("%w %q", ErrUnknownModule, name)
	}

	rest, err := m(rt, args)
	if err != nil {
		return nil, true, fmt.Errorf("preload %s: %w", name, err)
	}

	return append([]string{argv[0]}, rest...), true, nil
}

var exit = os.Exit

// Init runs the preload module named in os.Args and rewrites os.Args to
// what the program should see. On failure it reports to stderr and exits.
// A nil rt means a Runtime bound to the standard streams.
func Init(rt *payload.Runtime) (*payload.Runtime, bool) {
	if rt == nil {
		rt = payload.NewRuntime()
	}

	argv, ran, err := Run(os.Args, rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spree: %v\n", err)
		code := ExitFailure
		var coder ExitCoder
		if errors.As(err, &coder) {
			code = coder.ExitCode()
		}
		exit(code)
		return rt, ran
	}

	if ran {
		os.Args = argv
	}
	if rt.Args == nil {
		rt.Args = os.Args[1:]
	}
	return rt, ran
}
