// Package secretloader fetches environment-scoped secrets from the vault into
// the project's .threshold-secrets directory and loads them into the process
// environment.
//
//	if err := secretloader.Load("dev", false); err != nil {
//		log.Fatal(err)
//	}
//
// Calls are serialized by a package-level mutex, since loading mutates
// process-wide state.
package secretloader

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/secret-loader/internal/config"
	"github.com/systmms/secret-loader/internal/envstore"
	"github.com/systmms/secret-loader/internal/fetch"
	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/materialize"
	"github.com/systmms/secret-loader/internal/pkgroot"
	"github.com/systmms/secret-loader/internal/precedence"
	"github.com/systmms/secret-loader/internal/telemetry"
	pkgexec "github.com/systmms/secret-loader/pkg/exec"
)

// Store is a mutable set of environment variables. The process environment
// is used unless another Store is supplied with WithStore.
type Store = envstore.Store

// FetchResult describes the files written by Fetch.
type FetchResult = materialize.Result

// LoadResult describes the files and keys applied by Load.
type LoadResult = precedence.LoadResult

// LoadPlan lists the files Load would apply.
type LoadPlan = precedence.Plan

// NewMapStore returns an in-memory Store seeded with vars.
func NewMapStore(vars map[string]string) Store {
	return envstore.NewMap(vars)
}

var (
	mu sync.Mutex

	// collectors per registerer, since each may only be registered once
	registered = make(map[prometheus.Registerer]*telemetry.Metrics)
)

type settings struct {
	root       string
	configPath string
	store      envstore.Store
	executor   pkgexec.CommandExecutor
	logOut     io.Writer
	debug      bool
	registerer prometheus.Registerer
}

// Option customizes a call.
type Option func(*settings)

// WithRoot uses root as the project root instead of discovering it from the
// working directory.
func WithRoot(root string) Option {
	return func(s *settings) { s.root = root }
}

// WithConfigPath reads configuration from path instead of .secret-loader.yaml.
func WithConfigPath(path string) Option {
	return func(s *settings) { s.configPath = path }
}

// WithStore loads into, and reads credentials from, store.
func WithStore(store Store) Option {
	return func(s *settings) { s.store = store }
}

// WithExecutor runs vault commands through executor.
func WithExecutor(executor pkgexec.CommandExecutor) Option {
	return func(s *settings) { s.executor = executor }
}

// WithLogOutput writes progress to w. Debug adds command tracing.
func WithLogOutput(w io.Writer, debug bool) Option {
	return func(s *settings) {
		s.logOut = w
		s.debug = debug
	}
}

// WithRegisterer records fetch, vault command and load metrics in reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

func (s *settings) metrics() *telemetry.Metrics {
	if s.registerer == nil {
		return nil
	}
	m, ok := registered[s.registerer]
	if !ok {
		m = telemetry.NewWith(s.registerer)
		registered[s.registerer] = m
	}
	return m
}

// Fetch retrieves every secret record and rewrites the secrets directory.
// Verbose reports each step.
func Fetch(ctx context.Context, verbose bool, opts ...Option) (FetchResult, error) {
	mu.Lock()
	defer mu.Unlock()

	s, cfg, err := prepare(opts, verbose)
	if err != nil {
		return FetchResult{}, err
	}

	p, err := fetch.FromConfig(cfg, s.store, s.executor,
		fetch.WithLogger(cfg.Logger),
		fetch.WithVerbose(verbose),
		fetch.WithMetrics(s.metrics()),
	)
	if err != nil {
		return FetchResult{}, err
	}
	return p.Run(ctx)
}

// Load merges the secrets for environment into the store. Production defaults
// always apply first; the environment's files overlay them. Unless override is
// set, variables that were already defined keep their values.
func Load(environment string, override bool, opts ...Option) (LoadResult, error) {
	mu.Lock()
	defer mu.Unlock()

	s, cfg, err := prepare(opts, false)
	if err != nil {
		return LoadResult{}, err
	}
	return precedence.New(cfg.SecretsDir(), s.store,
		precedence.WithLogger(cfg.Logger),
		precedence.WithMetrics(s.metrics()),
	).Load(environment, override)
}

// Plan reports which files Load would apply for environment.
func Plan(environment string, opts ...Option) (LoadPlan, error) {
	mu.Lock()
	defer mu.Unlock()

	s, cfg, err := prepare(opts, false)
	if err != nil {
		return LoadPlan{}, err
	}
	return precedence.New(cfg.SecretsDir(), s.store, precedence.WithLogger(cfg.Logger)).
		Plan(environment)
}

func prepare(opts []Option, verbose bool) (*settings, *config.Config, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = envstore.NewOS()
	}

	logger := logging.Discard()
	if s.logOut != nil {
		logger = logging.NewWithWriter(s.logOut, s.debug, true)
	} else if s.debug || verbose {
		logger = logging.NewWithWriter(os.Stderr, s.debug, false)
	}

	root := s.root
	if root == "" {
		var err error
		if root, err = pkgroot.FromWorkingDir(); err != nil {
			return nil, nil, err
		}
	}

	cfg := &config.Config{
		Path:           s.configPath,
		Root:           root,
		Logger:         logger,
		NonInteractive: true,
	}
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}
