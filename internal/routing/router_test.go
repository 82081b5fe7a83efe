package routing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/provider/registry"
	"github.com/davidbz/forgeflow/internal/routing"
)

// routedProvider is a minimal domain.Provider for routing tests.
type routedProvider struct {
	name string
	caps []domain.Capability
}

func (p *routedProvider) Compose(_ context.Context, _ *domain.ComposeRequest) (*domain.ComposeResult, error) {
	return &domain.ComposeResult{Provider: p.name}, nil
}

func (p *routedProvider) Stream(_ context.Context, _ *domain.ComposeRequest) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent)
	close(ch)
	return ch, nil
}

func (p *routedProvider) Name() string { return p.name }

func (p *routedProvider) Capabilities() []domain.Capability { return p.caps }

func register(t *testing.T, reg domain.ProviderRegistry, name string, caps ...domain.Capability) {
	t.Helper()

	err := reg.Register(context.Background(), domain.Descriptor{
		Name:         name,
		Capabilities: caps,
		Factory: func() (domain.Provider, error) {
			return &routedProvider{name: name, caps: caps}, nil
		},
	})
	require.NoError(t, err)
}

func TestRouter_Route(t *testing.T) {
	t.Run("should select first provider with capability", func(t *testing.T) {
		reg := registry.NewRegistry()
		register(t, reg, "plan-only", domain.CapabilityCompose, domain.CapabilityStream)
		register(t, reg, "full", domain.CapabilityCompose, domain.CapabilityStream, domain.CapabilityExecute)
		register(t, reg, "also-full", domain.CapabilityCompose, domain.CapabilityStream, domain.CapabilityExecute)

		router := routing.NewRouter(reg)

		name, err := router.Route(context.Background(), domain.CapabilityExecute)
		require.NoError(t, err)
		require.Equal(t, "full", name)
	})

	t.Run("should respect registration order", func(t *testing.T) {
		reg := registry.NewRegistry()
		register(t, reg, "second-registered", domain.CapabilityCompose, domain.CapabilityStream)
		register(t, reg, "first-registered", domain.CapabilityCompose, domain.CapabilityStream)

		router := routing.NewRouter(reg)

		name, err := router.Route(context.Background(), domain.CapabilityCompose)
		require.NoError(t, err)
		require.Equal(t, "second-registered", name)
	})

	t.Run("should return error when no provider has capability", func(t *testing.T) {
		reg := registry.NewRegistry()
		register(t, reg, "plan-only", domain.CapabilityCompose, domain.CapabilityStream)

		router := routing.NewRouter(reg)

		name, err := router.Route(context.Background(), domain.CapabilityExecute)
		require.Error(t, err)
		require.Empty(t, name)
		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})

	t.Run("should return error when registry is empty", func(t *testing.T) {
		router := routing.NewRouter(registry.NewRegistry())

		_, err := router.Route(context.Background(), domain.CapabilityCompose)
		require.Error(t, err)
		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})

	t.Run("should return error when capability is empty", func(t *testing.T) {
		router := routing.NewRouter(registry.NewRegistry())

		_, err := router.Route(context.Background(), "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "capability cannot be empty")
	})
}
