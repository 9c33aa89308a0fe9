package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/fetch"
	"github.com/systmms/secret-loader/internal/materialize"
	"github.com/systmms/secret-loader/internal/precedence"
	pkgexec "github.com/systmms/secret-loader/pkg/exec"
)

// Check statuses.
const (
	StatusOK    = "ok"
	StatusWarn  = "warn"
	StatusError = "error"
)

// CheckResult is the outcome of one doctor check.
type CheckResult struct {
	Name       string
	Status     string
	Message    string
	Suggestion string
}

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and the secrets directory",
		Long: `Verify that secret-loader can fetch and load secrets.

This command checks:
- Configuration file validity
- The vault CLI is on PATH
- Vault credentials are available (values are never printed)
- The secrets directory exists
- The secrets directory's .gitignore covers every file in it`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if err := prepare(cfg); err != nil {
				displayCheckResults(out, []CheckResult{{
					Name:    "configuration",
					Status:  StatusError,
					Message: firstLine(err.Error()),
				}}, true)
				return err
			}

			results := []CheckResult{
				{Name: "configuration", Status: StatusOK, Message: cfg.ResolvedPath()},
				checkVaultCommand(cfg),
				checkCredentials(cmd, cfg),
			}
			results = append(results, checkSecretsDir(cfg)...)

			displayCheckResults(out, results, verbose)

			failed := 0
			for _, r := range results {
				if r.Status == StatusError {
					failed++
				}
			}
			if failed > 0 {
				return dserrors.UserError{
					Message:    fmt.Sprintf("%d of %d checks failed", failed, len(results)),
					Suggestion: "Run 'secret-loader doctor --verbose' for suggestions",
				}
			}
			cfg.Logger.Info("All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show suggestions for every check")

	return cmd
}

func checkVaultCommand(cfg *config.Config) CheckResult {
	command := cfg.Definition.Vault.Command
	path, err := pkgexec.LookPath(command)
	if err != nil {
		return CheckResult{
			Name:       "vault cli",
			Status:     StatusError,
			Message:    fmt.Sprintf("'%s' not found on PATH", command),
			Suggestion: "Install Bitwarden CLI: https://bitwarden.com/help/cli/",
		}
	}
	return CheckResult{Name: "vault cli", Status: StatusOK, Message: path}
}

func checkCredentials(cmd *cobra.Command, cfg *config.Config) CheckResult {
	// resolve against a copy so nothing is exported
	scratch := envstore.NewMap(cfg.Env().Snapshot())
	resolver, err := fetch.NewResolver(cfg, scratch, cfg.Logger)
	if err != nil {
		return CheckResult{Name: "credentials", Status: StatusError, Message: err.Error()}
	}

	_, source, err := resolver.Resolve(cmd.Context())
	if err != nil {
		var missing dserrors.MissingCredentialsError
		result := CheckResult{Name: "credentials", Status: StatusError, Message: firstLine(err.Error())}
		if errors.As(err, &missing) {
			result.Message = "missing " + strings.Join(missing.Missing, ", ")
			result.Suggestion = "Create ~/.threshold-secrets.json or export the TH_BW_* variables"
		}
		return result
	}
	return CheckResult{Name: "credentials", Status: StatusOK, Message: "found in " + string(source)}
}

func checkSecretsDir(cfg *config.Config) []CheckResult {
	dir := cfg.SecretsDir()
	plan, err := newEngine(cfg, envstore.NewMap(nil), nil).Plan(precedence.Production)
	if dserrors.IsNotFetched(err) {
		return []CheckResult{{
			Name:       "secrets directory",
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s does not exist", dir),
			Suggestion: "Run 'secret-loader fetch'",
		}}
	}
	if err != nil {
		return []CheckResult{{Name: "secrets directory", Status: StatusError, Message: err.Error()}}
	}
	if len(plan.Production) == 0 {
		return []CheckResult{{
			Name:       "secrets directory",
			Status:     StatusWarn,
			Message:    fmt.Sprintf("no production defaults in %s", dir),
			Suggestion: "Add a secrets.env record to the vault and run 'secret-loader fetch'",
		}}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return []CheckResult{{Name: "secrets directory", Status: StatusError, Message: err.Error()}}
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}

	results := []CheckResult{{
		Name:    "secrets directory",
		Status:  StatusOK,
		Message: fmt.Sprintf("%s (%d files)", dir, len(files)),
	}}

	listed, err := readIgnoreList(filepath.Join(dir, materialize.IgnoreFile))
	if err != nil {
		return append(results, CheckResult{
			Name:       "ignore list",
			Status:     StatusError,
			Message:    fmt.Sprintf("cannot read %s: %v", materialize.IgnoreFile, err),
			Suggestion: "Run 'secret-loader fetch' to regenerate it",
		})
	}

	var uncovered []string
	for _, f := range files {
		if !listed[f] {
			uncovered = append(uncovered, f)
		}
	}
	if len(uncovered) > 0 {
		return append(results, CheckResult{
			Name:       "ignore list",
			Status:     StatusError,
			Message:    "not ignored: " + strings.Join(uncovered, ", "),
			Suggestion: "Remove the files or run 'secret-loader fetch' to regenerate the directory",
		})
	}
	return append(results, CheckResult{Name: "ignore list", Status: StatusOK, Message: "covers every file"})
}

func readIgnoreList(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	listed := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			listed[line] = true
		}
	}
	return listed, scanner.Err()
}

func displayCheckResults(w io.Writer, results []CheckResult, verbose bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHECK\tSTATUS\tDETAILS")
	for _, r := range results {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, statusSymbol(r.Status), r.Message)
	}
	_ = tw.Flush()

	for _, r := range results {
		if r.Suggestion != "" && (verbose || r.Status == StatusError) {
			_, _ = fmt.Fprintf(w, "  💡 %s: %s\n", r.Name, r.Suggestion)
		}
	}
}

func statusSymbol(status string) string {
	switch status {
	case StatusOK:
		return "✓ ok"
	case StatusWarn:
		return "⚠ warn"
	default:
		return "✗ error"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
