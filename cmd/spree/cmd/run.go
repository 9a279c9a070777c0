package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/psantana5/spree/internal/observe"
	"github.com/psantana5/spree/internal/report"
	"github.com/psantana5/spree/internal/tracing"
	"github.com/psantana5/spree/pkg/intercept"
	"github.com/psantana5/spree/pkg/launch"
	"github.com/psantana5/spree/pkg/payload"
)

// runFlags select the payload and the reporting of one launch.
type runFlags struct {
	medium         string
	redirectStdout string
	redirectStderr string
	appendOutput   bool
	setenv         []string
	writeFiles     []string
	call           string
	callArgs       []string
	executables    []string

	output          string
	listen          string
	metricsTextfile string
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Launch a program, injecting a payload if it is spree-aware",
	Long: `Run launches the command through an interceptor. When the command is a
spree-aware binary the payload built from the flags runs inside the child
before its program starts; any other command is launched untouched.

The launch report is written to stderr once the child exits, and spree
exits with the child's exit code.

Example:
  spree run --redirect-stdout out.txt -- spree echo Hello world
  spree run --write-file /tmp/marker=ready --medium /tmp/envelope.gob -- ./my-spree-aware-tool
  spree run --setenv DEBUG=1 --output json -- spree echo`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.medium, "medium", "", "persistent medium path, kept after the launch (default: ephemeral temp file)")
	f.StringVar(&runOpts.redirectStdout, "redirect-stdout", "", "redirect the child's stdout to a file")
	f.StringVar(&runOpts.redirectStderr, "redirect-stderr", "", "redirect the child's stderr to a file")
	f.BoolVar(&runOpts.appendOutput, "append", false, "append to redirected and written files instead of truncating")
	f.StringArrayVar(&runOpts.setenv, "setenv", nil, "set KEY=VALUE in the child (repeatable)")
	f.StringArrayVar(&runOpts.writeFiles, "write-file", nil, "write PATH=DATA from the child (repeatable)")
	f.StringVar(&runOpts.call, "call", "", "call a registered payload function by name")
	f.StringArrayVar(&runOpts.callArgs, "arg", nil, "KEY=VALUE argument for --call (repeatable)")
	f.StringSliceVar(&runOpts.executables, "executable", nil, "extra executable base names treated as spree-aware")

	f.StringVarP(&runOpts.output, "output", "o", "table", "report format: table, json or none")
	f.StringVar(&runOpts.listen, "listen", "", "serve /metrics and /launches on this address while the child runs")
	f.StringVar(&runOpts.metricsTextfile, "metrics-textfile", "", "write metrics to this file after the launch, - for stderr")
}

// buildPayload assembles the payload requested by the flags. Steps run in
// flag order: environment, redirection, files, then the function call.
// It returns nil when no payload was requested.
func buildPayload(o runFlags) (payload.Payload, error) {
	var steps []payload.Payload

	if len(o.setenv) > 0 {
		vars, err := parsePairs("--setenv", o.setenv)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &payload.Setenv{Vars: vars})
	}

	if o.redirectStdout != "" || o.redirectStderr != "" {
		steps = append(steps, &payload.Redirect{
			Stdout: o.redirectStdout,
			Stderr: o.redirectStderr,
			Append: o.appendOutput,
		})
	}

	for _, kv := range o.writeFiles {
		path, data, ok := strings.Cut(kv, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --write-file %q, expected PATH=DATA", kv)
		}
		steps = append(steps, &payload.WriteFile{Path: path, Data: data, Append: o.appendOutput})
	}

	if o.call != "" {
		args, err := parsePairs("--arg", o.callArgs)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &payload.Call{Name: o.call, Args: args})
	} else if len(o.callArgs) > 0 {
		return nil, errors.New("--arg requires --call")
	}

	switch len(steps) {
	case 0:
		return nil, nil
	case 1:
		return steps[0], nil
	default:
		return &payload.Sequence{Steps: steps}, nil
	}
}

func parsePairs(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid %s %q, expected KEY=VALUE", flag, kv)
		}
		out[k] = v
	}
	return out, nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	switch runOpts.output {
	case "table", "json", "none":
	default:
		return fmt.Errorf("unknown output format %q", runOpts.output)
	}

	p, err := buildPayload(runOpts)
	if err != nil {
		return err
	}

	metrics := report.Global()
	history := report.GlobalHistory()

	tp, err := tracing.InitTracer(cfg.TracerConfig(Version), logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	}()

	listen := runOpts.listen
	if listen == "" {
		listen = cfg.Metrics.Listen
	}
	if listen != "" {
		srv, err := startServer(listen, newRouter(metrics, history, tp))
		if err != nil {
			return err
		}
		defer stopServer(srv)
	}

	mediumPath := runOpts.medium
	if mediumPath == "" {
		mediumPath = cfg.Medium.Path
	}

	interceptor := intercept.New(launch.Exec{}, intercept.Config{
		Payload:     p,
		MediumPath:  mediumPath,
		TempDir:     cfg.Medium.TempDir,
		Executables: append(append([]string(nil), cfg.Executables...), runOpts.executables...),
		Logger:      logger,
		Metrics:     metrics,
	})

	child, err := interceptor.Launch(cmd.Context(), args, &launch.Options{
		Stdin:  os.Stdin,
		Stdout: stdout(),
		Stderr: stderr(),
	})
	if err != nil {
		return err
	}

	// The child owns the terminal; pass interrupts on instead of dying first.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigChan)
		close(done)
	}()
	go func() {
		for {
			select {
			case sig := <-sigChan:
				logger.Warn("forwarding signal to child", map[string]interface{}{"signal": sig.String()})
				child.SendSignal(sig)
			case <-done:
				return
			}
		}
	}()

	observed := observe.Cmdline(child.Pid())

	waitErr := child.Wait()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("waiting for %s: %w", args[0], waitErr)
	}

	result := report.NewResult(uuid.NewString(), child, observed)
	metrics.RecordResult(result)
	history.Record(result)
	result.LogSummary(logger)

	if err := writeResult(result, runOpts.output); err != nil {
		return err
	}

	textfile := runOpts.metricsTextfile
	if textfile == "" {
		textfile = cfg.Metrics.Textfile
	}
	switch textfile {
	case "":
	case "-":
		if err := metrics.WriteText(stderr()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	default:
		if err := metrics.WriteTextfile(textfile); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}

	return exitStatus(child)
}

func writeResult(r *report.Result, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(stderr())
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case "none":
		return nil
	default:
		return r.WriteTable(stderr())
	}
}

// exitStatus maps the child's termination onto spree's own exit code.
// A child killed by a signal exits 128+signal, as a shell reports it.
func exitStatus(child *launch.Child) error {
	code := child.ExitCode()
	if code == 0 {
		return nil
	}
	if code < 0 {
		code = 1
		if status, ok := child.WaitStatus(); ok && status.Signaled() {
			code = 128 + int(status.Signal())
		}
	}
	return &ExitError{Code: code}
}
