// Package registry implements the process-wide provider registry. It maps
// provider names to descriptors, rejects duplicate registrations unless an
// overwrite is requested, and constructs provider instances once, on first
// lookup.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/davidbz/forgeflow/internal/domain"
)

// Registry implements the domain.ProviderRegistry interface.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]domain.Descriptor
	instances   map[string]domain.Provider
	order       []string
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]domain.Descriptor),
		instances:   make(map[string]domain.Provider),
		order:       []string{},
	}
}

// Register adds a descriptor to the registry. A name conflict fails with
// domain.ErrDuplicateProvider unless domain.WithOverwrite is given, in
// which case the new descriptor replaces the old one (keeping its position
// in registration order) and any cached instance is dropped.
func (r *Registry) Register(_ context.Context, desc domain.Descriptor, opts ...domain.RegisterOption) error {
	if desc.Name == "" {
		return errors.New("provider name cannot be empty")
	}

	if desc.Factory == nil {
		return fmt.Errorf("provider %s: factory cannot be nil", desc.Name)
	}

	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("provider %s: capability set cannot be empty", desc.Name)
	}

	var cfg domain.RegisterConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[desc.Name]; exists {
		if !cfg.Overwrite {
			return fmt.Errorf("provider %s: %w", desc.Name, domain.ErrDuplicateProvider)
		}
		// Replacing the descriptor invalidates any constructed instance.
		delete(r.instances, desc.Name)
	} else {
		r.order = append(r.order, desc.Name)
	}

	r.descriptors[desc.Name] = desc

	return nil
}

// Get retrieves a provider by name, running the descriptor factory on
// first use. The constructed instance is cached for the registry's
// lifetime; a factory failure is not cached, so a later Get retries.
func (r *Registry) Get(_ context.Context, name string) (domain.Provider, error) {
	if name == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	instance, cached := r.instances[name]
	r.mu.RUnlock()

	if cached {
		return instance, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have constructed the instance while we waited.
	if instance, cached = r.instances[name]; cached {
		return instance, nil
	}

	desc, exists := r.descriptors[name]
	if !exists {
		return nil, fmt.Errorf("provider %s: %w", name, domain.ErrProviderNotFound)
	}

	instance, err := desc.Factory()
	if err != nil {
		return nil, fmt.Errorf("failed to construct provider %s: %w", name, err)
	}

	if instance == nil {
		return nil, fmt.Errorf("provider %s: factory returned nil", name)
	}

	// The instance must back every capability the descriptor declares.
	if err := checkCapabilities(desc, instance); err != nil {
		return nil, err
	}

	r.instances[name] = instance

	return instance, nil
}

// Describe returns the registered descriptor for a name.
func (r *Registry) Describe(_ context.Context, name string) (domain.Descriptor, error) {
	if name == "" {
		return domain.Descriptor{}, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.descriptors[name]
	if !exists {
		return domain.Descriptor{}, fmt.Errorf("provider %s: %w", name, domain.ErrProviderNotFound)
	}

	return desc, nil
}

// List returns registered provider names in registration order.
func (r *Registry) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)

	return names, nil
}

func checkCapabilities(desc domain.Descriptor, instance domain.Provider) error {
	have := make(map[domain.Capability]bool)
	for _, c := range instance.Capabilities() {
		have[c] = true
	}

	for _, c := range desc.Capabilities {
		if !have[c] {
			return fmt.Errorf("provider %s: instance does not implement declared capability %q",
				desc.Name, c)
		}
	}

	return nil
}
