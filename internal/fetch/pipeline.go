// Package fetch runs the end-to-end fetch: resolve credentials, open a vault
// session, retrieve the secret records, close the session and materialize the
// records in the secrets directory.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/credentials"
	"github.com/systmms/secret-loader/internal/envstore"
	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/materialize"
	"github.com/systmms/secret-loader/internal/telemetry"
	"github.com/systmms/secret-loader/internal/vault"
	pkgexec "github.com/systmms/secret-loader/pkg/exec"
)

// Pipeline runs one fetch. Build it with FromConfig.
type Pipeline struct {
	resolver     *credentials.Resolver
	client       *vault.BitwardenCLI
	sessions     *vault.SessionManager
	fetcher      *vault.Fetcher
	materializer *materialize.Materializer
	dir          string

	logger  *logging.Logger
	verbose bool
	metrics *telemetry.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithVerbose reports every step at info level.
func WithVerbose(verbose bool) Option {
	return func(p *Pipeline) { p.verbose = verbose }
}

// WithMetrics records the run in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// FromConfig builds a Pipeline for a loaded configuration. Credentials are
// read from and exported into store. When executor is nil, vault commands run
// as real subprocesses whose environment is taken from store.
func FromConfig(cfg *config.Config, store envstore.Store, executor pkgexec.CommandExecutor, opts ...Option) (*Pipeline, error) {
	if cfg.Definition == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	def := cfg.Definition

	p := &Pipeline{
		dir:    cfg.SecretsDir(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	logger := p.logger

	if executor == nil {
		executor = &pkgexec.RealCommandExecutor{Environ: store.Environ}
	}

	resolver, err := NewResolver(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	p.resolver = resolver

	p.client = vault.NewBitwardenCLI(executor,
		vault.WithCommand(def.Vault.Command, def.Vault.Args...),
		vault.WithLogger(logger),
		vault.WithMetrics(p.metrics),
	)
	p.sessions = vault.NewSessionManager(p.client,
		vault.WithSync(def.Vault.Sync),
		vault.WithSessionLogger(logger),
	)

	switch vault.Mode(def.Fetch.Mode) {
	case vault.ModeCollection:
		p.fetcher = vault.NewCollectionFetcher(p.client, def.Fetch.CollectionID, logger)
	default:
		p.fetcher = vault.NewItemFetcher(p.client, def.Fetch.ItemIDs, logger)
	}

	matOpts := []materialize.Option{materialize.WithVerbose(p.verbose)}
	if def.Materialize.ShredPrevious {
		matOpts = append(matOpts, materialize.WithShred(def.Materialize.ShredPasses))
	}
	p.materializer = materialize.New(logger, matOpts...)

	return p, nil
}

// NewResolver builds the credential resolver for cfg: the credentials file
// unless disabled, the keychain when a service is configured, then store.
func NewResolver(cfg *config.Config, store envstore.Store, logger *logging.Logger) (*credentials.Resolver, error) {
	credFile, err := cfg.CredentialsFile()
	if err != nil {
		return nil, err
	}
	opts := []credentials.Option{
		credentials.WithFile(credFile),
		credentials.WithLogger(logger),
	}
	if service := cfg.Definition.Credentials.KeychainService; service != "" {
		opts = append(opts, credentials.WithKeychain(credentials.NewKeychain(service)))
	}
	return credentials.NewResolver(store, opts...), nil
}

// Run executes the fetch. The vault session is always logged out, also when a
// step fails. A failure after the directory was removed can leave it partial.
func (p *Pipeline) Run(ctx context.Context) (result materialize.Result, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordFetch(start, len(result.Files), err)
	}()

	p.step("Getting vault credentials")
	creds, source, err := p.resolver.Resolve(ctx)
	if err != nil {
		return result, err
	}
	p.client.AddRedaction(creds.Values()...)
	p.step("Using credentials from %s", source)

	p.step("Logging in to vault")
	session, err := p.sessions.Open(ctx)
	closed := false
	defer func() {
		if closed {
			return
		}
		if closeErr := p.sessions.Close(context.WithoutCancel(ctx), session); closeErr != nil {
			p.logger.Warn("Failed to log out of vault: %v", closeErr)
		}
	}()
	if err != nil {
		return result, err
	}
	p.step("Vault unlocked")

	p.step("Fetching secrets (%s mode)", p.fetcher.Mode())
	records, err := p.fetcher.FetchItems(ctx, session)
	if err != nil {
		return result, err
	}
	p.step("Fetched %d secret files", len(records))

	closed = true
	if err := p.sessions.Close(ctx, session); err != nil {
		p.logger.Warn("Failed to log out of vault: %v", err)
	}
	p.step("Logged out of vault")

	result, err = p.materializer.Materialize(ctx, p.dir, records)
	if err != nil {
		return result, err
	}
	p.step("Wrote %d secret files to %s", len(result.Files), p.dir)
	return result, nil
}

func (p *Pipeline) step(format string, args ...interface{}) {
	if p.verbose {
		p.logger.Info(format, args...)
		return
	}
	p.logger.Debug(format, args...)
}
