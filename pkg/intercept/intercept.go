// Package intercept is the parent side of spree: a launch.Launcher that
// injects a payload into children running a spree-aware binary.
//
// Hand an Interceptor to the code that spawns processes in place of
// launch.Exec. Launches of incompatible executables, and all launches when
// no payload is configured, are forwarded untouched.
package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/spree/internal/logging"
	"github.com/psantana5/spree/internal/report"
	"github.com/psantana5/spree/internal/tracing"
	"github.com/psantana5/spree/pkg/launch"
	"github.com/psantana5/spree/pkg/loader"
	"github.com/psantana5/spree/pkg/medium"
	"github.com/psantana5/spree/pkg/payload"
)

// DefaultExecutables are recognized regardless of configuration, in
// addition to the base name of the running executable.
var DefaultExecutables = []string{"spree"}

// Failure stages of an intercepted launch.
const (
	StageEncode = "encode"
	StageMedium = "medium"
	StageSpawn  = "spawn"
)

// Config configures an Interceptor. It is copied by New.
type Config struct {
	// Payload injected into compatible children. Nil means pass-through.
	Payload payload.Payload

	// MediumPath selects a persistent medium, overwritten on every launch
	// and left on disk. Empty selects a fresh ephemeral medium per launch.
	// Launches sharing a MediumPath must not overlap.
	MediumPath string

	// TempDir holds ephemeral media. Empty means os.TempDir.
	TempDir string

	// Executables are extra base names recognized as spree-aware.
	Executables []string

	Logger  *logging.Logger
	Metrics *report.Metrics
}

// Error is returned when an intercepted launch fails before spawning.
type Error struct {
	Stage string
	Argv  []string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("intercept %s: %s: %v", e.Argv[0], e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Interceptor injects a payload into compatible launches.
type Interceptor struct {
	next        launch.Launcher
	cfg         Config
	executables map[string]struct{}
	log         *logging.Logger
	metrics     *report.Metrics
	tracer      trace.Tracer
}

var _ launch.Launcher = (*Interceptor)(nil)

// New creates an Interceptor forwarding to next; nil next means launch.Exec.
func New(next launch.Launcher, cfg Config) *Interceptor {
	if next == nil {
		next = launch.Exec{}
	}

	i := &Interceptor{
		next:        next,
		cfg:         cfg,
		executables: make(map[string]struct{}),
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      otel.Tracer("github.com/psantana5/spree/pkg/intercept"),
	}
	i.cfg.Executables = append([]string(nil), cfg.Executables...)
	if i.log == nil {
		i.log = logging.Default()
	}
	if i.metrics == nil {
		i.metrics = report.Global()
	}

	if exe, err := Executable(); err == nil {
		i.executables[filepath.Base(exe)] = struct{}{}
	}
	for _, name := range DefaultExecutables {
		i.executables[name] = struct{}{}
	}
	for _, name := range cfg.Executables {
		i.executables[filepath.Base(name)] = struct{}{}
	}
	return i
}

var (
	executableOnce sync.Once
	executable     string
	executableErr  error
)

// Executable returns the path of the running binary, resolved once.
func Executable() (string, error) {
	executableOnce.Do(func() {
		executable, executableErr = os.Executable()
	})
	return executable, executableErr
}

// Compatible reports whether argv targets a spree-aware binary: the running
// executable itself, or one whose base name is recognized.
func (i *Interceptor) Compatible(argv []string) bool {
	if len(argv) == 0 || argv[0] == "" {
		return false
	}
	if exe, err := Executable(); err == nil && argv[0] == exe {
		return true
	}
	_, ok := i.executables[filepath.Base(argv[0])]
	return ok
}

// Prepare writes the envelope for argv and returns the rewritten argv with
// the handle of the medium. Launches that are not intercepted come back
// unchanged with a nil handle.
func (i *Interceptor) Prepare(argv []string) ([]string, *medium.Handle, error) {
	if i.cfg.Payload == nil || !i.Compatible(argv) {
		return argv, nil, nil
	}

	env := &payload.Envelope{
		Payload:      i.cfg.Payload,
		DeleteOnLoad: i.cfg.MediumPath == "",
	}

	var buf bytes.Buffer
	if err := payload.Encode(&buf, env); err != nil {
		return nil, nil, &Error{Stage: StageEncode, Argv: argv, Err: err}
	}

	provider := medium.Provider{Path: i.cfg.MediumPath, Dir: i.cfg.TempDir}
	h, err := provider.Write(func(w io.Writer) error {
		_, err := buf.WriteTo(w)
		return err
	})
	if err != nil {
		return nil, nil, &Error{Stage: StageMedium, Argv: argv, Err: err}
	}

	return loader.Command(argv, h.Path), &h, nil
}

// Launch starts argv through the next launcher, injecting the payload when
// argv is compatible. opts are forwarded as given.
func (i *Interceptor) Launch(ctx context.Context, argv []string, opts *launch.Options) (*launch.Child, error) {
	ctx, span := i.tracer.Start(ctx, "intercept.Launch")
	defer span.End()
	if len(argv) > 0 {
		span.SetAttributes(attribute.String("spree.executable", argv[0]))
	}

	rewritten, h, err := i.Prepare(argv)
	if err != nil {
		stage := StageMedium
		var ierr *Error
		if errors.As(err, &ierr) {
			stage = ierr.Stage
		}
		i.metrics.IncrFailure(stage)
		tracing.SetError(ctx, err)
		i.log.Error("launch not intercepted", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
		return nil, err
	}

	if h == nil {
		i.metrics.IncrLaunch(report.ModePassthrough)
		span.SetAttributes(attribute.String("spree.mode", report.ModePassthrough))
		if len(argv) > 0 {
			i.log.Debug("launch passed through", map[string]interface{}{"executable": argv[0]})
		}
		return i.next.Launch(ctx, argv, opts)
	}

	i.metrics.IncrLaunch(report.ModeIntercepted)
	i.metrics.ObserveMedium(h.Size)
	span.SetAttributes(
		attribute.String("spree.mode", report.ModeIntercepted),
		attribute.String("spree.medium", h.Path),
		attribute.Bool("spree.ephemeral", h.Ephemeral),
		attribute.Int64("spree.medium_bytes", h.Size),
	)
	i.log.Info("launch intercepted", map[string]interface{}{
		"executable": argv[0],
		"payload":    payload.TypeName(i.cfg.Payload),
		"medium":     h.Path,
		"ephemeral":  h.Ephemeral,
	})

	child, err := i.next.Launch(ctx, rewritten, opts)
	if err != nil {
		// Nobody is left to read it.
		if h.Ephemeral {
			os.Remove(h.Path)
		}
		i.metrics.IncrFailure(StageSpawn)
		tracing.SetError(ctx, err)
	}
	return child, err
}
