// Package precedence resolves which secrets files apply to an environment and
// merges them into an environment store.
//
// Every environment starts from the production defaults: secrets.env followed
// by any prod-* or production-* file. A non-production environment then
// overlays the files named with its alias or canonical prefix, for example
// dev-secrets.env and development-extra.env for development. Later files win
// on key collisions. With override disabled, keys that existed before the load
// keep their previous values.
package precedence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-envparse"

	"github.com/systmms/secret-loader/internal/envstore"
	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/telemetry"
)

// DefaultFile is the production defaults file.
const DefaultFile = "secrets.env"

const envExt = ".env"

// Plan lists the files a load applies, in application order.
type Plan struct {
	Environment string
	Dir         string
	Production  []string
	Overlay     []string
}

// Files returns every planned file in application order.
func (p Plan) Files() []string {
	files := make([]string, 0, len(p.Production)+len(p.Overlay))
	files = append(files, p.Production...)
	return append(files, p.Overlay...)
}

// LoadResult describes a completed load.
type LoadResult struct {
	Environment string
	// Files are the applied file names in order.
	Files []string
	// Keys are the variables defined by the applied files, sorted.
	Keys []string
	// Preserved are the keys whose previous value was kept because override was off.
	Preserved []string
}

// Engine loads secrets files from one directory into a store. It is not safe
// for concurrent use.
type Engine struct {
	dir     string
	store   envstore.Store
	logger  *logging.Logger
	metrics *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records loads in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over the secrets directory dir.
func New(dir string, store envstore.Store, opts ...Option) *Engine {
	e := &Engine{
		dir:    dir,
		store:  store,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan resolves environment and lists the files a load would apply, without
// reading them.
func (e *Engine) Plan(environment string) (Plan, error) {
	canonical := Normalize(environment)
	plan := Plan{Environment: canonical, Dir: e.dir}

	info, err := os.Stat(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return plan, dserrors.SecretsDirectoryNotFoundError{Dir: e.dir}
		}
		return plan, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return plan, dserrors.SecretsDirectoryNotFoundError{Dir: e.dir}
	}

	files, err := e.enumerate()
	if err != nil {
		return plan, err
	}

	inProduction := make(map[string]bool)
	for _, f := range files {
		if f == DefaultFile {
			plan.Production = append(plan.Production, f)
			inProduction[f] = true
			break
		}
	}
	if len(plan.Production) == 0 {
		e.logger.Debug("No %s in %s, production defaults come from prefixed files only", DefaultFile, e.dir)
	}
	for _, f := range files {
		if f != DefaultFile && hasAnyPrefix(f, overlayPrefixes(Production)) {
			plan.Production = append(plan.Production, f)
			inProduction[f] = true
		}
	}

	if canonical != Production {
		for _, f := range files {
			if !inProduction[f] && hasAnyPrefix(f, overlayPrefixes(canonical)) {
				plan.Overlay = append(plan.Overlay, f)
			}
		}
		if len(plan.Overlay) == 0 {
			e.logger.Debug("No files for environment '%s', using production defaults only", canonical)
		}
	}

	return plan, nil
}

// Load applies the planned files for environment to the store. When override
// is false, every key that existed before the call is restored afterwards.
// A load that fails part way leaves the store as it was.
func (e *Engine) Load(environment string, override bool) (result LoadResult, err error) {
	result.Environment = Normalize(environment)
	defer func() {
		e.metrics.RecordLoad(result.Environment, len(result.Files), err)
	}()

	plan, err := e.Plan(environment)
	if err != nil {
		return result, err
	}

	snapshot := e.store.Snapshot()
	keys := make(map[string]bool)

	if err := e.apply(plan, &result, keys); err != nil {
		if rbErr := e.rollback(snapshot, keys); rbErr != nil {
			return result, fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		result.Files = nil
		return result, err
	}

	if !override {
		for key := range keys {
			if _, existed := snapshot[key]; existed {
				result.Preserved = append(result.Preserved, key)
			}
		}
		sort.Strings(result.Preserved)
		if err := e.store.Restore(snapshot); err != nil {
			return result, fmt.Errorf("failed to restore environment: %w", err)
		}
	}

	result.Keys = sortedKeys(keys)
	e.logger.Debug("Loaded %d variables for '%s' from %d files", len(result.Keys), result.Environment, len(result.Files))
	return result, nil
}

func (e *Engine) apply(plan Plan, result *LoadResult, keys map[string]bool) error {
	for _, name := range plan.Files() {
		vars, err := readFile(filepath.Join(e.dir, name))
		if err != nil {
			return fmt.Errorf("failed to parse '%s': %w", name, err)
		}
		for _, key := range sortedKeys(vars) {
			if err := e.store.Set(key, vars[key]); err != nil {
				return fmt.Errorf("failed to apply '%s': %w", name, err)
			}
			keys[key] = true
		}
		result.Files = append(result.Files, name)
		e.logger.Debug("Applied %s (%d variables)", name, len(vars))
	}
	return nil
}

// rollback undoes a partial apply: snapshotted keys get their old value back
// and keys that did not exist before are removed.
func (e *Engine) rollback(snapshot map[string]string, keys map[string]bool) error {
	for key := range keys {
		if _, existed := snapshot[key]; existed {
			continue
		}
		if err := e.store.Unset(key); err != nil {
			return err
		}
	}
	return e.store.Restore(snapshot)
}

// readFile decodes a KEY=VALUE file. Values are taken literally, `$NAME` and
// `${NAME}` are never expanded.
func readFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return envparse.Parse(f)
}

// enumerate lists the *.env files of the directory sorted by name.
func (e *Engine) enumerate() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), envExt) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
