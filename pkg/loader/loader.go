// Package loader is the child side of spree. It reads the envelope left on
// the transfer medium, removes the medium when it is ephemeral and runs the
// payload before the program's own logic.
//
// A spree-aware binary starts with
//
//	func main() {
//		rt := loader.Init()
//		...
//	}
//
// and writes its output through rt.
package loader

import (
	"errors"
	"fmt"
	"os"

	"github.com/psantana5/spree/internal/logging"
	"github.com/psantana5/spree/pkg/hook"
	"github.com/psantana5/spree/pkg/payload"
)

// Module is the preload module name the interceptor targets.
const Module = "spree.loader"

// Exit codes of a child whose payload never reached its program.
const (
	ExitDelivery = 3
	ExitPayload  = 4
)

var (
	ErrNoMedium  = errors.New("no medium path given")
	ErrNoPayload = errors.New("envelope carries no payload")
)

func init() {
	hook.Register(Module, preload)
}

func preload(rt *payload.Runtime, args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, &DeliveryError{Err: ErrNoMedium}
	}
	rest := args[1:]
	rt.Args = rest
	if err := Load(rt, args[0]); err != nil {
		return nil, err
	}
	return rest, nil
}

// Init runs the loader if the process was started by an interceptor and
// returns the Runtime the program should write through. Failures are fatal.
func Init() *payload.Runtime {
	rt, _ := hook.Init(payload.NewRuntime())
	return rt
}

// Load decodes the envelope at path and runs its payload against rt.
func Load(rt *payload.Runtime, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &DeliveryError{Path: path, Err: err}
	}
	env, err := payload.Decode(f)
	f.Close()
	if err != nil {
		return &DeliveryError{Path: path, Err: err}
	}

	if env.DeleteOnLoad {
		if err := os.Remove(path); err != nil {
			logging.Default().Warn("failed to remove medium", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	if env.Payload == nil {
		return &DeliveryError{Path: path, Err: ErrNoPayload}
	}

	if err := env.Payload.Run(rt); err != nil {
		return &PayloadError{Type: payload.TypeName(env.Payload), Err: err}
	}
	return nil
}

// Command rewrites argv so that the loader runs the envelope at path before
// the program starts with argv[1:].
func Command(argv []string, path string) []string {
	return hook.Command(argv[0], Module, []string{path}, argv[1:])
}

// MediumPath reports the medium path carried by an argv built by Command.
func MediumPath(argv []string) (string, bool) {
	module, args, ok := hook.Parse(argv)
	if !ok || module != Module || len(args) == 0 {
		return "", false
	}
	return args[0], true
}

// DeliveryError is returned when the envelope cannot be read or decoded.
type DeliveryError struct {
	Path string
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Path == "" {
		return "payload delivery failed: " + e.Err.Error()
	}
	return fmt.Sprintf("payload delivery from %s failed: %v", e.Path, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) ExitCode() int { return ExitDelivery }

// PayloadError is returned when the payload itself fails.
type PayloadError struct {
	Type string
	Err  error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload %s failed: %v", e.Type, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

func (e *PayloadError) ExitCode() int { return ExitPayload }
