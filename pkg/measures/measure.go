// Package measures provides field-level string distances and a registry to look them up by name.
package measures

import (
	"fmt"
	"sort"
	"sync"
)

// StringMeasure is a distance between two field values.
type StringMeasure interface {
	Name() string
	Distance(a, b string) (float64, error)
	// Normalised reports whether distances are guaranteed to lie in [0,1].
	Normalised() bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]StringMeasure)
)

func init() {
	Register(Levenshtein{})
	Register(NormalisedLevenshtein{})
	Register(DamerauLevenshtein{})
	Register(Hamming{})
	Register(LongestCommonSubsequence{})
	Register(Jaro{})
	Register(JaroWinkler{})
	Register(Soundex{})
	Register(DoubleMetaphone{})
	Register(JensenShannon{})
	Register(Exact{})
}

// Register adds a measure to the registry under its name.
func Register(m StringMeasure) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[m.Name()] = m
}

// Get retrieves a measure by name.
func Get(name string) (StringMeasure, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[name]
	return m, ok
}

// Lookup retrieves a measure by name or returns an error naming the known measures.
func Lookup(name string) (StringMeasure, error) {
	if m, ok := Get(name); ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown string measure '%s' (known: %v)", name, Names())
}

// Names lists the registered measure names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exact is the discrete metric: 0 for identical values, 1 otherwise.
type Exact struct{}

func (Exact) Name() string     { return "exact" }
func (Exact) Normalised() bool { return true }

func (Exact) Distance(a, b string) (float64, error) {
	if a == b {
		return 0, nil
	}
	return 1, nil
}
