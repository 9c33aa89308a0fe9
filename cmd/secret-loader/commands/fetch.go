package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/internal/config"
)

func NewFetchCommand(cfg *config.Config) *cobra.Command {
	var (
		verbose     bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch secrets from the vault into .threshold-secrets",
		Long: `Fetch logs out of any stale Bitwarden session, logs in with the API key,
unlocks the vault and downloads every configured secrets item. The secrets
directory is deleted and recreated, each item is written as a file named after
the item, and a .gitignore covering all of them is generated.

Examples:
  secret-loader fetch
  secret-loader fetch --verbose
  secret-loader fetch --metrics-textfile /var/lib/node_exporter/secret_loader.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), cfg, verbose, metricsFile)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show every step")
	cmd.Flags().StringVar(&metricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file for the node_exporter textfile collector")

	return cmd
}
