// Package secrets holds secret values and masks them in captured output.
package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RedactedPlaceholder replaces secret values in masked output.
const RedactedPlaceholder = "***"

// Store is a read-mostly collection of named secrets.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStore creates an empty secret store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Set stores a secret value under a name.
func (s *Store) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Get returns a secret value and whether it exists.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the sorted secret names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns the requested secrets as a map, erroring on any
// missing name.
func (s *Store) Subset(names []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(names))
	for _, name := range names {
		v, ok := s.values[name]
		if !ok {
			return nil, fmt.Errorf("secret %q not found", name)
		}
		out[name] = v
	}
	return out, nil
}

// LoadFile merges secrets from a YAML file of name: value pairs.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse secrets file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range values {
		s.values[name] = value
	}
	return nil
}

// LoadEnv merges all environment variables carrying the given prefix,
// stripping the prefix from the secret name.
func (s *Store) LoadEnv(prefix string) {
	if prefix == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if trimmed, found := strings.CutPrefix(name, prefix); found && trimmed != "" {
			s.values[trimmed] = value
		}
	}
}

// Masker redacts a fixed set of secret values from text.
type Masker struct {
	values []string
}

// NewMasker creates a Masker for the given secret values. Values
// shorter than 4 characters are not masked to avoid shredding output.
func NewMasker(values []string) *Masker {
	m := &Masker{}
	for _, v := range values {
		if len(v) >= 4 {
			m.values = append(m.values, v)
		}
	}
	// Longest first so overlapping secrets redact fully.
	sort.Slice(m.values, func(i, j int) bool {
		return len(m.values[i]) > len(m.values[j])
	})
	return m
}

// MaskerFor builds a Masker covering every value in the store.
func MaskerFor(store *Store) *Masker {
	store.mu.RLock()
	defer store.mu.RUnlock()
	values := make([]string, 0, len(store.values))
	for _, v := range store.values {
		values = append(values, v)
	}
	return NewMasker(values)
}

// Mask replaces every secret occurrence in s with the placeholder.
func (m *Masker) Mask(s string) string {
	for _, v := range m.values {
		s = strings.ReplaceAll(s, v, RedactedPlaceholder)
	}
	return s
}
