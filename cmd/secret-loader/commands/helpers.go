package commands

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/fetch"
	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/pkgroot"
	"github.com/systmms/secret-loader/internal/precedence"
	"github.com/systmms/secret-loader/internal/telemetry"
)

// prepare resolves the project root and loads the configuration.
func prepare(cfg *config.Config) error {
	if cfg.Logger == nil {
		cfg.Logger = logging.New(false, false)
	}

	if cfg.Root == "" {
		root, err := pkgroot.FromWorkingDir()
		if err != nil {
			return dserrors.UserError{
				Message:    "Unable to find the project root",
				Details:    err.Error(),
				Suggestion: "Run inside a project directory or pass --root",
				Err:        err,
			}
		}
		cfg.Root = root
	} else {
		root, err := filepath.Abs(cfg.Root)
		if err != nil {
			return err
		}
		cfg.Root = root
	}

	return cfg.Load()
}

func runFetch(ctx context.Context, cfg *config.Config, verbose bool, metricsFile string) error {
	if err := prepare(cfg); err != nil {
		return err
	}

	metrics := newMetrics(metricsFile)

	p, err := fetch.FromConfig(cfg, cfg.Env(), cfg.Executor,
		fetch.WithLogger(cfg.Logger),
		fetch.WithVerbose(verbose),
		fetch.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx)

	writeMetrics(cfg, metrics, metricsFile)
	if runErr != nil {
		return runErr
	}

	if !verbose {
		cfg.Logger.Info("Fetched %d secret files into %s", len(result.Files), result.Dir)
	}
	return nil
}

// newMetrics returns nil unless metrics are written to a textfile.
func newMetrics(metricsFile string) *telemetry.Metrics {
	if metricsFile == "" {
		return nil
	}
	return telemetry.New()
}

func writeMetrics(cfg *config.Config, metrics *telemetry.Metrics, metricsFile string) {
	if metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(metricsFile); err != nil {
		cfg.Logger.Warn("Failed to write metrics to %s: %v", metricsFile, err)
	}
}

func newEngine(cfg *config.Config, store envstore.Store, metrics *telemetry.Metrics) *precedence.Engine {
	return precedence.New(cfg.SecretsDir(), store,
		precedence.WithLogger(cfg.Logger),
		precedence.WithMetrics(metrics),
	)
}

func envFlagUsage() string {
	return "Environment name or alias (" + strings.Join(precedence.Canonical(), ", ") + ")"
}

func warnUnknownEnvironment(cfg *config.Config, name string) {
	if precedence.IsKnown(name) {
		return
	}
	cfg.Logger.Warn("Unknown environment '%s', only production defaults and %s-* files apply",
		name, precedence.Normalize(name))
}
