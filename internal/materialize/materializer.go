// Package materialize writes fetched secret records into the secrets directory.
package materialize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/shred"
	"github.com/systmms/secret-loader/internal/vault"
)

// IgnoreFile is the generated ignore-list kept inside the secrets directory.
const IgnoreFile = ".gitignore"

const (
	dirPerm  os.FileMode = 0700
	filePerm os.FileMode = 0600
)

// Result describes a completed materialization.
type Result struct {
	Dir string
	// Files are the record file names in record order.
	Files []string
	// Shredded lists previous files that were overwritten before removal.
	Shredded []string
}

// Materializer replaces the secrets directory with a set of records.
type Materializer struct {
	logger      *logging.Logger
	verbose     bool
	shredPasses int
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithShred overwrites the previous directory contents passes times before
// deleting them. Zero disables shredding.
func WithShred(passes int) Option {
	return func(m *Materializer) { m.shredPasses = passes }
}

// WithVerbose logs every step at info level.
func WithVerbose(verbose bool) Option {
	return func(m *Materializer) { m.verbose = verbose }
}

// New creates a Materializer.
func New(logger *logging.Logger, opts ...Option) *Materializer {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &Materializer{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize deletes dir, recreates it, writes every record concurrently and,
// once all writes are done, writes the ignore-list. On error the directory may
// hold a partial set of files.
func (m *Materializer) Materialize(ctx context.Context, dir string, records []vault.SecretRecord) (Result, error) {
	result := Result{Dir: dir}

	if m.shredPasses > 0 {
		shredded, err := shred.Dir(dir, m.shredPasses)
		if err != nil {
			return result, fmt.Errorf("failed to shred previous secrets in '%s': %w", dir, err)
		}
		result.Shredded = shredded
	}

	m.progress("Removing existing '%s'", filepath.Base(dir))
	if err := os.RemoveAll(dir); err != nil {
		return result, fmt.Errorf("failed to remove '%s': %w", dir, err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return result, fmt.Errorf("failed to create '%s': %w", dir, err)
	}
	m.progress("Created new '%s' directory", filepath.Base(dir))

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, rec.Name)
			if err := os.WriteFile(path, []byte(rec.Payload), filePerm); err != nil {
				return fmt.Errorf("failed to write '%s': %w", rec.Name, err)
			}
			m.progress("Added '%s'", rec.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	files := make([]string, 0, len(records))
	for _, rec := range records {
		files = append(files, rec.Name)
	}
	result.Files = files

	if err := os.WriteFile(filepath.Join(dir, IgnoreFile), []byte(IgnoreList(files)), filePerm); err != nil {
		return result, fmt.Errorf("failed to write '%s': %w", IgnoreFile, err)
	}
	m.progress("Added '%s'", IgnoreFile)

	return result, nil
}

// IgnoreList renders the ignore-list: the ignore file itself, then every
// record file relative to the secrets directory.
func IgnoreList(files []string) string {
	lines := make([]string, 0, len(files)+1)
	lines = append(lines, IgnoreFile)
	for _, f := range files {
		lines = append(lines, filepath.ToSlash(f))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m *Materializer) progress(format string, args ...interface{}) {
	if m.verbose {
		m.logger.Info(format, args...)
		return
	}
	m.logger.Debug(format, args...)
}
