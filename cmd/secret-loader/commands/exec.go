package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/execenv"
	"github.com/systmms/secret-loader/internal/precedence"
)

func NewExecCommand(cfg *config.Config) *cobra.Command {
	var (
		envName     string
		printVars   bool
		override    bool
		workingDir  string
		timeout     time.Duration
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "exec --env <name> -- <command> [args...]",
		Short: "Run a command with the environment's secrets loaded",
		Long: `Exec loads the secrets for an environment on top of the current environment
and runs the command with the result. The current process environment is not
modified.

The command must be separated from secret-loader arguments with '--'.

Examples:
  secret-loader exec --env dev -- go run ./cmd/server
  secret-loader exec --env test --override -- go test ./...
  secret-loader exec --env staging --print -- ./deploy.sh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return dserrors.UserError{
					Message:    "No command specified",
					Suggestion: "Use: secret-loader exec --env <name> -- <command> [args...]",
				}
			}

			if err := prepare(cfg); err != nil {
				return err
			}
			if !cmd.Flags().Changed("override") {
				override = cfg.Definition.Load.Override
			}

			warnUnknownEnvironment(cfg, envName)

			// child environment: a copy of ours with the secrets merged in
			child := envstore.NewMap(cfg.Env().Snapshot())
			metrics := newMetrics(metricsFile)
			result, err := newEngine(cfg, child, metrics).Load(envName, override)
			writeMetrics(cfg, metrics, metricsFile)
			if err != nil {
				return err
			}
			cfg.Logger.Debug("Loaded %s from %v", result.Environment, result.Files)

			loaded := make(map[string]string, len(result.Keys))
			for _, key := range result.Keys {
				if v, ok := child.Get(key); ok {
					loaded[key] = v
				}
			}

			return execenv.New(cfg.Logger).Exec(cmd.Context(), execenv.ExecOptions{
				Command:    args,
				Environ:    child.Environ(),
				Loaded:     loaded,
				PrintVars:  printVars,
				WorkingDir: workingDir,
				Timeout:    timeout,
				Stdin:      cmd.InOrStdin(),
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
		},
	}

	cmd.Flags().StringVarP(&envName, "env", "e", precedence.Development, envFlagUsage())
	cmd.Flags().BoolVar(&printVars, "print", false, "Print loaded variable names with masked values")
	cmd.Flags().BoolVar(&override, "override", false, "Let secrets override variables already set (default from load.override)")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "Working directory for the command")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the command after this duration (0 for none)")
	cmd.Flags().StringVar(&metricsFile, "metrics-textfile", "", "Write load metrics to this file for the node_exporter textfile collector")

	return cmd
}
