package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/internal/config"
)

// NewRootCommand returns the top-level command. Invoked without a subcommand
// it runs a verbose fetch, optionally for the project root given as argument.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "secret-loader [root]",
		Short: "Fetch environment secrets from Bitwarden into .threshold-secrets",
		Long: `secret-loader logs in to Bitwarden with an API key, downloads the project's
secrets notes and writes them as .env files into a gitignored
.threshold-secrets directory at the project root.

Running secret-loader without a subcommand fetches with progress output.

Credentials are read from ~/.threshold-secrets.json, or from
TH_BW_CLIENT_ID/BW_CLIENTID, TH_BW_CLIENT_SECRET/BW_CLIENTSECRET and
TH_BW_PASSWORD/BW_PASSWORD.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.Root = args[0]
			}
			return runFetch(cmd.Context(), cfg, true, "")
		},
	}
}
