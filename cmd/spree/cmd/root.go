package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/spree/internal/config"
	"github.com/psantana5/spree/internal/logging"
	"github.com/psantana5/spree/pkg/payload"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool

	// Set by PersistentPreRunE.
	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "spree",
	Short: "Inject a payload into child processes of a spree-aware binary",
	Long: `spree launches programs and, when the target is a spree-aware binary,
runs a payload inside the child before the program's own main logic.

Any binary that calls loader.Init first thing in main is spree-aware,
spree itself included.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

// ExitError carries the exit code of a launched child up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the command line in rt.Args, writing through rt.
func Execute(rt *payload.Runtime) error {
	rootCmd.SetOut(rt.Stdout)
	rootCmd.SetErr(rt.Stderr)
	rootCmd.SetArgs(rt.Args)
	return rootCmd.Execute()
}

func init() {
	// Assigned here rather than in the literal: initConfig refers to rootCmd.
	rootCmd.PersistentPreRunE = initConfig

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spree/spree.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
}

// initConfig reads in config file and ENV variables, then sets up logging
func initConfig(*cobra.Command, []string) error {
	v := viper.New()
	if err := v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json")); err != nil {
		return err
	}

	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	opts := cfg.LogOptions()
	opts.Output = stderr()
	logger, err = logging.New(opts)
	return err
}

func stdout() io.Writer { return rootCmd.OutOrStdout() }

func stderr() io.Writer { return rootCmd.ErrOrStderr() }
