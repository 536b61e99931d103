package features

import (
	"sort"
	"sync"
)

// Predefined feature flag names
const (
	// FeatureCacheEnabled enables/disables the upstream response cache
	FeatureCacheEnabled = "cache_enabled"
	// FeatureNarrativeEnabled enables/disables generated trip recommendations
	FeatureNarrativeEnabled = "narrative_enabled"
	// FeatureCheapestFlightFirst makes the planner pick the cheapest affordable offer
	FeatureCheapestFlightFirst = "cheapest_flight_first"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// Defaults registers the application's flags with the given initial states.
func (m *Manager) Defaults(cacheEnabled, narrativeEnabled, cheapestFlightFirst bool) *Manager {
	m.Register(FeatureCacheEnabled, cacheEnabled, "Serve repeated upstream queries from cache")
	m.Register(FeatureNarrativeEnabled, narrativeEnabled, "Ask the text-generation provider for trip recommendations")
	m.Register(FeatureCheapestFlightFirst, cheapestFlightFirst, "Plan around the cheapest affordable flight instead of the first one returned")
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Func returns a closure reporting the flag's current state, for components
// that should not depend on the manager.
func (m *Manager) Func(name string) func() bool {
	return func() bool {
		return m.IsEnabled(name)
	}
}

// Set changes a registered flag and reports whether it exists.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	flag.Enabled = enabled
	return true
}

// List returns copies of all flags ordered by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
