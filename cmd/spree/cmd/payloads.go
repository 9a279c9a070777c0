package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/spree/pkg/hook"
	"github.com/psantana5/spree/pkg/payload"
)

// Functions reachable with "spree run --call". They are registered in this
// binary, so both the parent and any spree child know them.
func init() {
	payload.RegisterFunc("spree.print", func(rt *payload.Runtime, args map[string]string) error {
		_, err := fmt.Fprintln(rt.Stdout, args["text"])
		return err
	})
	payload.RegisterFunc("spree.chdir", func(rt *payload.Runtime, args map[string]string) error {
		return os.Chdir(args["dir"])
	})
}

var payloadsCmd = &cobra.Command{
	Use:   "payloads",
	Short: "List the payload functions and preload modules of this binary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table := tablewriter.NewWriter(stdout())
		table.Header("Kind", "Name")
		for _, name := range payload.Funcs() {
			table.Append([]string{"function", name})
		}
		for _, name := range hook.Modules() {
			table.Append([]string{"preload", name})
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(payloadsCmd)
}
