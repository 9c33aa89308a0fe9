// Package envstore abstracts the process environment so that loaders can be
// pointed at something other than the real, process-wide state.
package envstore

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Store is a mutable set of environment variables.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Unset(key string) error
	// Snapshot returns a full copy of the current variables.
	Snapshot() map[string]string
	// Restore sets every key of snapshot back to its value. Keys absent from
	// the snapshot are left alone.
	Restore(snapshot map[string]string) error
	// Environ returns the variables in KEY=VALUE form, sorted by key.
	Environ() []string
}

// OSStore is the process environment.
type OSStore struct{}

// NewOS returns a Store backed by os.Getenv/os.Setenv.
func NewOS() *OSStore {
	return &OSStore{}
}

func (OSStore) Get(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (OSStore) Set(key, value string) error {
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (OSStore) Unset(key string) error {
	if err := os.Unsetenv(key); err != nil {
		return fmt.Errorf("failed to unset %s: %w", key, err)
	}
	return nil
}

func (OSStore) Snapshot() map[string]string {
	return parseEnviron(os.Environ())
}

func (s OSStore) Restore(snapshot map[string]string) error {
	for key, value := range snapshot {
		if err := s.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (OSStore) Environ() []string {
	env := os.Environ()
	sort.Strings(env)
	return env
}

// MapStore is an in-memory Store, safe for concurrent use.
type MapStore struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMap returns a MapStore seeded with a copy of vars.
func NewMap(vars map[string]string) *MapStore {
	m := &MapStore{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

func (m *MapStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[key]
	return v, ok
}

func (m *MapStore) Set(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=\x00") {
		return fmt.Errorf("invalid environment variable name %q", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}

func (m *MapStore) Unset(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key)
	return nil
}

func (m *MapStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}

func (m *MapStore) Restore(snapshot map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range snapshot {
		m.vars[k] = v
	}
	return nil
}

func (m *MapStore) Environ() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vars))
	for k, v := range m.vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func parseEnviron(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			vars[parts[0]] = parts[1]
		}
	}
	return vars
}
