package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var echoCmd = &cobra.Command{
	Use:   "echo [words...]",
	Short: "Print the arguments, a spree-aware child for trying payloads",
	Long: `Echo prints its arguments to stdout. Since spree is itself spree-aware,
"spree run -- spree echo ..." shows a payload acting on a child, for example
one redirecting its output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(stdout(), strings.Join(args, " "))
		return err
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
}
