package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/cmd/secret-loader/commands"
	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/execenv"
	"github.com/systmms/secret-loader/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		var exitErr execenv.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile     string
		rootDir        string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	cfg := &config.Config{}

	rootCmd := commands.NewRootCommand(cfg)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg.Path = configFile
		cfg.Root = rootDir
		cfg.Logger = logging.New(debug, noColor)
		cfg.NonInteractive = nonInteractive
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultFileName, "Config file path (relative to the project root)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root (default: nearest directory with go.mod, package.json or .git)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	rootCmd.AddCommand(
		commands.NewFetchCommand(cfg),
		commands.NewPlanCommand(cfg),
		commands.NewExecCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewCleanCommand(cfg),
	)

	return rootCmd.Execute()
}
