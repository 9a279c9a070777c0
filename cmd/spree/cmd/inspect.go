package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/spree/pkg/payload"
)

var inspectOutput string

var inspectCmd = &cobra.Command{
	Use:   "inspect <medium>",
	Short: "Decode a persistent medium and print its envelope",
	Long: `Inspect decodes the envelope left on a persistent medium, one written by
"spree run --medium PATH", without running its payload or deleting it.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "yaml", "output format: yaml, json or table")
}

// Inspection is the printable form of a decoded envelope.
type Inspection struct {
	Path         string          `json:"path" yaml:"path"`
	Size         int64           `json:"size" yaml:"size"`
	Type         string          `json:"type" yaml:"type"`
	DeleteOnLoad bool            `json:"delete_on_load" yaml:"delete_on_load"`
	Payload      payload.Payload `json:"payload" yaml:"payload"`
}

func inspectMedium(path string) (*Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	env, err := payload.Decode(f)
	if err != nil {
		return nil, err
	}

	return &Inspection{
		Path:         path,
		Size:         fi.Size(),
		Type:         payload.TypeName(env.Payload),
		DeleteOnLoad: env.DeleteOnLoad,
		Payload:      env.Payload,
	}, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	in, err := inspectMedium(args[0])
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", args[0], err)
	}

	switch inspectOutput {
	case "json":
		encoder := json.NewEncoder(stdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(in)

	case "yaml":
		encoder := yaml.NewEncoder(stdout())
		encoder.SetIndent(2)
		return encoder.Encode(in)

	case "table":
		state, err := payload.Describe(in.Payload)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(stdout())
		table.Header("Property", "Value")
		table.Append([]string{"Path", in.Path})
		table.Append([]string{"Size", strconv.FormatInt(in.Size, 10)})
		table.Append([]string{"Type", in.Type})
		table.Append([]string{"Delete On Load", strconv.FormatBool(in.DeleteOnLoad)})
		table.Append([]string{"Payload", strings.TrimSpace(state)})
		return table.Render()

	default:
		return fmt.Errorf("unknown output format %q", inspectOutput)
	}
}
