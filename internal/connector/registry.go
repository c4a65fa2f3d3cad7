package connector

import (
	"fmt"
	"sync"
)

// Provider registration is the explicit stand-in for classpath-style plugin
// discovery: integration packages register a provider from their wiring code
// (typically the main package), and Discover enumerates them once at startup.
// Nothing is hot-reloaded; the resulting Registry is read-only for the
// process lifetime.
var providerRegistry = struct {
	mu       sync.Mutex
	systems  []SystemProvider
	centrals []CentralProvider
}{}

// RegisterSystemProvider adds a provider of system connectors.
// Safe to call from multiple goroutines; nil providers are ignored.
func RegisterSystemProvider(p SystemProvider) {
	if p == nil {
		return
	}
	providerRegistry.mu.Lock()
	defer providerRegistry.mu.Unlock()
	providerRegistry.systems = append(providerRegistry.systems, p)
}

// RegisterCentralProvider adds a provider of central connectors.
func RegisterCentralProvider(p CentralProvider) {
	if p == nil {
		return
	}
	providerRegistry.mu.Lock()
	defer providerRegistry.mu.Unlock()
	providerRegistry.centrals = append(providerRegistry.centrals, p)
}

// ResetProviders clears all registered providers. Called before a fresh
// round of registration, and by tests.
func ResetProviders() {
	providerRegistry.mu.Lock()
	defer providerRegistry.mu.Unlock()
	providerRegistry.systems = nil
	providerRegistry.centrals = nil
}

// Registry holds the live connectors for the process lifetime.
type Registry struct {
	systems map[string]SystemConnector
	central CentralConnector
}

// NewRegistry builds a registry directly from connector instances.
// Used by tests and by callers that wire connectors without providers.
// The central connector must be non-nil.
func NewRegistry(central CentralConnector, systems ...SystemConnector) (*Registry, error) {
	if central == nil {
		return nil, fmt.Errorf("registry: central connector is required")
	}
	r := &Registry{
		systems: make(map[string]SystemConnector, len(systems)),
		central: central,
	}
	for _, s := range systems {
		if s == nil {
			continue
		}
		url := s.SystemURL()
		if url == "" {
			return nil, fmt.Errorf("registry: system connector with empty system URL")
		}
		if _, dup := r.systems[url]; dup {
			return nil, fmt.Errorf("registry: duplicate system connector for %s", url)
		}
		r.systems[url] = s
	}
	return r, nil
}

// Discover enumerates all registered providers and builds the registry.
//
// Exactly one central connector must be contributed across all central
// providers. More than one is a configuration error the deployment must
// fix, not a condition to silently pick a winner from. Fatal at startup.
func Discover() (*Registry, error) {
	providerRegistry.mu.Lock()
	systems := make([]SystemProvider, len(providerRegistry.systems))
	copy(systems, providerRegistry.systems)
	centrals := make([]CentralProvider, len(providerRegistry.centrals))
	copy(centrals, providerRegistry.centrals)
	providerRegistry.mu.Unlock()

	var central CentralConnector
	for _, p := range centrals {
		conns, err := p()
		if err != nil {
			return nil, fmt.Errorf("central provider: %w", err)
		}
		for _, c := range conns {
			if central != nil {
				return nil, fmt.Errorf("registry: more than one central connector provided")
			}
			central = c
		}
	}
	if central == nil {
		return nil, fmt.Errorf("registry: no central connector provided")
	}

	var all []SystemConnector
	for _, p := range systems {
		conns, err := p()
		if err != nil {
			return nil, fmt.Errorf("system provider: %w", err)
		}
		all = append(all, conns...)
	}
	return NewRegistry(central, all...)
}

// Central returns the single central connector.
func (r *Registry) Central() CentralConnector {
	return r.central
}

// System looks up the connector owning the given system URL.
// Returns a NotRegisteredError when no connector serves it.
func (r *Registry) System(systemURL string) (SystemConnector, error) {
	s, ok := r.systems[systemURL]
	if !ok {
		return nil, &NotRegisteredError{SystemURL: systemURL}
	}
	return s, nil
}

// Systems returns all system connectors. The map must not be mutated.
func (r *Registry) Systems() map[string]SystemConnector {
	return r.systems
}
