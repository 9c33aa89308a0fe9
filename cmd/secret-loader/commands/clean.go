package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/internal/config"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/shred"
)

func NewCleanCommand(cfg *config.Config) *cobra.Command {
	var (
		force      bool
		shredFiles bool
		passes     int
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete the secrets directory",
		Long: `Delete the .threshold-secrets directory and every secrets file in it.

With --shred each file is overwritten with random data before deletion.

Examples:
  secret-loader clean
  secret-loader clean --force --shred --passes 3

Security Note:
Modern SSDs with wear leveling may still retain data. For maximum security,
use full disk encryption.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shredFiles && (passes < 1 || passes > shred.MaxPasses) {
				return dserrors.UserError{
					Message:    "Invalid number of passes",
					Suggestion: fmt.Sprintf("Passes must be between 1 and %d", shred.MaxPasses),
				}
			}

			if err := prepare(cfg); err != nil {
				return err
			}
			dir := cfg.SecretsDir()

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				cfg.Logger.Info("Nothing to clean: %s does not exist", dir)
				return nil
			}

			if !force && !cfg.NonInteractive {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "⚠️  Delete %s? This is IRREVERSIBLE. (y/N): ", dir)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				if answer != "y" && answer != "yes" {
					cfg.Logger.Info("Operation cancelled")
					return nil
				}
			}

			if shredFiles {
				files, err := shred.Dir(dir, passes)
				if err != nil {
					return dserrors.UserError{
						Message: fmt.Sprintf("Failed to shred %s", dir),
						Details: err.Error(),
						Err:     err,
					}
				}
				cfg.Logger.Info("Securely deleted %d files (%d passes)", len(files), passes)
				return nil
			}

			if err := os.RemoveAll(dir); err != nil {
				return dserrors.UserError{
					Message:    fmt.Sprintf("Failed to remove %s", dir),
					Details:    err.Error(),
					Suggestion: "Check file permissions",
					Err:        err,
				}
			}
			cfg.Logger.Info("Removed %s", dir)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without confirmation")
	cmd.Flags().BoolVar(&shredFiles, "shred", false, "Overwrite files with random data before deletion")
	cmd.Flags().IntVarP(&passes, "passes", "n", 3, "Number of overwrite passes with --shred")

	return cmd
}
