package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbz/forgeflow/internal/domain"
)

// CapabilityRouter selects a provider by declared capability when the
// caller does not name one. Providers are scanned in registration order,
// so selection is deterministic.
type CapabilityRouter struct {
	registry domain.ProviderRegistry
}

// NewRouter creates a new router.
func NewRouter(registry domain.ProviderRegistry) *CapabilityRouter {
	return &CapabilityRouter{
		registry: registry,
	}
}

// Route returns the first registered provider advertising the capability.
func (r *CapabilityRouter) Route(ctx context.Context, capability domain.Capability) (string, error) {
	if capability == "" {
		return "", errors.New("capability cannot be empty")
	}

	names, err := r.registry.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list providers: %w", err)
	}

	for _, name := range names {
		desc, descErr := r.registry.Describe(ctx, name)
		if descErr != nil {
			continue
		}

		if desc.HasCapability(capability) {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: no provider with capability %q", domain.ErrProviderNotFound, capability)
}
