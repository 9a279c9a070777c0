package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/psantana5/spree/internal/logging"
	"github.com/psantana5/spree/pkg/launch"
	"github.com/psantana5/spree/pkg/loader"
)

// Result is what is known about one finished launch. Set once, never change.
type Result struct {
	// Identity
	LaunchID string   `json:"launch_id" yaml:"launch_id"`
	Argv     []string `json:"argv" yaml:"argv"`
	PID      int      `json:"pid" yaml:"pid"`
	Mode     string   `json:"mode" yaml:"mode"` // "intercepted" or "passthrough"
	Medium   string   `json:"medium,omitempty" yaml:"medium,omitempty"`

	// Timing
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time" yaml:"end_time"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`

	// Outcome
	ExitCode   int    `json:"exit_code" yaml:"exit_code"`
	ExitReason string `json:"exit_reason" yaml:"exit_reason"`
	Signal     string `json:"signal,omitempty" yaml:"signal,omitempty"`

	// ObservedCmdline is the command line read back from the running child.
	ObservedCmdline []string `json:"observed_cmdline,omitempty" yaml:"observed_cmdline,omitempty"`
}

// NewResult freezes the outcome of a child that has been waited for.
func NewResult(launchID string, child *launch.Child, observed []string) *Result {
	argv := child.Argv()
	r := &Result{
		LaunchID:        launchID,
		Argv:            argv,
		PID:             child.Pid(),
		Mode:            ModePassthrough,
		StartTime:       child.StartedAt,
		EndTime:         child.ExitedAt,
		Duration:        child.Duration(),
		ExitCode:        child.ExitCode(),
		ExitReason:      string(child.Reason()),
		Signal:          child.Signal(),
		ObservedCmdline: observed,
	}
	if path, ok := loader.MediumPath(argv); ok {
		r.Mode = ModeIntercepted
		r.Medium = path
	}
	return r
}

// LogSummary emits a one-line summary of the launch.
func (r *Result) LogSummary(log *logging.Logger) {
	fields := map[string]interface{}{
		"launch_id": r.LaunchID,
		"mode":      r.Mode,
		"pid":       r.PID,
		"exit_code": r.ExitCode,
		"reason":    r.ExitReason,
		"runtime":   r.Duration.Round(time.Millisecond).String(),
	}
	if r.Signal != "" {
		fields["signal"] = r.Signal
	}
	log.Info("launch finished", fields)
}

// WriteTable renders r as a property table.
func (r *Result) WriteTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	table.Append([]string{"Launch ID", r.LaunchID})
	table.Append([]string{"Mode", r.Mode})
	if r.Medium != "" {
		table.Append([]string{"Medium", r.Medium})
	}
	table.Append([]string{"Argv", strings.Join(r.Argv, " ")})
	if len(r.ObservedCmdline) > 0 {
		table.Append([]string{"Observed", strings.Join(r.ObservedCmdline, " ")})
	}
	table.Append([]string{"PID", strconv.Itoa(r.PID)})
	table.Append([]string{"Exit Code", strconv.Itoa(r.ExitCode)})
	table.Append([]string{"Exit Reason", r.ExitReason})
	if r.Signal != "" {
		table.Append([]string{"Signal", r.Signal})
	}
	table.Append([]string{"Duration", fmt.Sprintf("%.3fs", r.Duration.Seconds())})

	return table.Render()
}
