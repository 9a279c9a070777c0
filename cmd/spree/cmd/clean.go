package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/spree/pkg/medium"
)

var cleanOlderThan time.Duration

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale ephemeral media",
	Long: `Clean removes ephemeral media left in the temp directory by children that
never started their loader. Persistent media are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := medium.Sweep(cfg.Medium.TempDir, "", cleanOlderThan)
		for _, path := range stats.Removed {
			fmt.Fprintln(stdout(), path)
		}
		logger.Info("clean complete", map[string]interface{}{
			"removed": len(stats.Removed),
			"kept":    stats.Kept,
			"elapsed": stats.Elapsed.String(),
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().DurationVar(&cleanOlderThan, "older-than", time.Hour, "only remove media last written before this long ago")
}
