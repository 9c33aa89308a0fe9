package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/precedence"
)

// PlanEntry is one file of a plan in JSON output.
type PlanEntry struct {
	Order int    `json:"order"`
	File  string `json:"file"`
	Layer string `json:"layer"`
}

// PlanOutput is the JSON form of a plan.
type PlanOutput struct {
	Environment string      `json:"environment"`
	Dir         string      `json:"dir"`
	Files       []PlanEntry `json:"files"`
}

func NewPlanCommand(cfg *config.Config) *cobra.Command {
	var (
		envName    string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which secrets files apply to an environment (no values shown)",
		Long: `Plan lists the files a load for the environment would apply, in order.
Production defaults (secrets.env, then prod-* and production-* files) come
first; files named with the environment's alias or canonical prefix overlay
them. Later files win on key collisions.

Examples:
  secret-loader plan --env dev
  secret-loader plan --env staging --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := prepare(cfg); err != nil {
				return err
			}

			warnUnknownEnvironment(cfg, envName)

			plan, err := newEngine(cfg, cfg.Env(), nil).Plan(envName)
			if err != nil {
				return err
			}

			if outputJSON {
				return outputPlanJSON(cmd.OutOrStdout(), plan)
			}
			return outputPlanTable(cmd.OutOrStdout(), plan)
		},
	}

	cmd.Flags().StringVarP(&envName, "env", "e", precedence.Production, envFlagUsage())
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}

func planEntries(plan precedence.Plan) []PlanEntry {
	entries := make([]PlanEntry, 0, len(plan.Production)+len(plan.Overlay))
	for _, f := range plan.Production {
		entries = append(entries, PlanEntry{Order: len(entries) + 1, File: f, Layer: precedence.Production})
	}
	for _, f := range plan.Overlay {
		entries = append(entries, PlanEntry{Order: len(entries) + 1, File: f, Layer: plan.Environment})
	}
	return entries
}

func outputPlanJSON(w io.Writer, plan precedence.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(PlanOutput{
		Environment: plan.Environment,
		Dir:         plan.Dir,
		Files:       planEntries(plan),
	})
}

func outputPlanTable(w io.Writer, plan precedence.Plan) error {
	_, _ = fmt.Fprintf(w, "Environment: %s\n", plan.Environment)
	_, _ = fmt.Fprintf(w, "Directory:   %s\n\n", plan.Dir)

	entries := planEntries(plan)
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No secrets files apply")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ORDER\tFILE\tLAYER")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Order, e.File, e.Layer)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(plan.Overlay) == 0 && plan.Environment != precedence.Production {
		_, _ = fmt.Fprintf(w, "\nNo files for '%s'; production defaults only\n", plan.Environment)
	}
	return nil
}
