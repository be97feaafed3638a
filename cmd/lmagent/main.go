package main

import (
	"errors"
	"fmt"
	"os"

	"lmagent/internal/config"
	"lmagent/internal/telemetry"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath  string
	projectRoot string
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	telemetry.Version = version

	rootCmd := &cobra.Command{
		Use:           "lmagent",
		Short:         "LMAgent tool-using agent runtime",
		Long:          "Runs a language model in a reason-act loop over a sandboxed set of developer tools.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to lmagent.yaml (default: search ./, ./configs, ~/.config/lmagent)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project-root", ".", "Directory the tools are confined to")

	rootCmd.AddCommand(newRunCmd(), newToolsCmd(), newTrajectoryCmd())

	if err := rootCmd.Execute(); err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if ee == nil || ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadWithDefaults()
}
