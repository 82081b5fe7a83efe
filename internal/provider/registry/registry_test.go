package registry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/provider/registry"
)

// mockProvider is a mock implementation of domain.Provider for testing.
type mockProvider struct {
	name string
	caps []domain.Capability
}

func (m *mockProvider) Compose(_ context.Context, _ *domain.ComposeRequest) (*domain.ComposeResult, error) {
	return &domain.ComposeResult{Provider: m.name}, nil
}

func (m *mockProvider) Stream(_ context.Context, _ *domain.ComposeRequest) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent)
	close(ch)
	return ch, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Capabilities() []domain.Capability {
	if m.caps != nil {
		return m.caps
	}
	return []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
}

func descriptorFor(name string, caps ...domain.Capability) domain.Descriptor {
	if len(caps) == 0 {
		caps = []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
	}
	return domain.Descriptor{
		Name:         name,
		Capabilities: caps,
		Factory: func() (domain.Provider, error) {
			return &mockProvider{name: name, caps: caps}, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should register descriptor successfully", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		err := reg.Register(ctx, descriptorFor("test-provider"))
		require.NoError(t, err)

		registered, err := reg.Get(ctx, "test-provider")
		require.NoError(t, err)
		require.NotNil(t, registered)
		require.Equal(t, "test-provider", registered.Name())
	})

	t.Run("should return error when name is empty", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		err := reg.Register(ctx, descriptorFor(""))
		require.Error(t, err)
		require.Contains(t, err.Error(), "name cannot be empty")
	})

	t.Run("should return error when factory is nil", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		err := reg.Register(ctx, domain.Descriptor{
			Name:         "test-provider",
			Capabilities: []domain.Capability{domain.CapabilityCompose},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "factory cannot be nil")
	})

	t.Run("should return error when capability set is empty", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		err := reg.Register(ctx, domain.Descriptor{
			Name: "test-provider",
			Factory: func() (domain.Provider, error) {
				return &mockProvider{name: "test-provider"}, nil
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "capability set cannot be empty")
	})

	t.Run("should reject duplicate registration without overwrite", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		err := reg.Register(ctx, descriptorFor("adk"))
		require.NoError(t, err)

		err = reg.Register(ctx, descriptorFor("adk"))
		require.Error(t, err)
		require.ErrorIs(t, err, domain.ErrDuplicateProvider)
	})

	t.Run("should replace descriptor with overwrite", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		first := domain.Descriptor{
			Name:         "adk",
			Capabilities: []domain.Capability{domain.CapabilityCompose},
			Factory: func() (domain.Provider, error) {
				return &mockProvider{name: "first", caps: []domain.Capability{domain.CapabilityCompose}}, nil
			},
		}
		second := domain.Descriptor{
			Name:         "adk",
			Capabilities: []domain.Capability{domain.CapabilityCompose},
			Factory: func() (domain.Provider, error) {
				return &mockProvider{name: "second", caps: []domain.Capability{domain.CapabilityCompose}}, nil
			},
		}

		require.NoError(t, reg.Register(ctx, first))

		// Construct and cache the first instance before overwriting.
		instance, err := reg.Get(ctx, "adk")
		require.NoError(t, err)
		require.Equal(t, "first", instance.Name())

		require.NoError(t, reg.Register(ctx, second, domain.WithOverwrite()))

		instance, err = reg.Get(ctx, "adk")
		require.NoError(t, err)
		require.Equal(t, "second", instance.Name())
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("should construct instance once and cache it", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		constructions := 0
		err := reg.Register(ctx, domain.Descriptor{
			Name:         "test-provider",
			Capabilities: []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream},
			Factory: func() (domain.Provider, error) {
				constructions++
				return &mockProvider{name: "test-provider"}, nil
			},
		})
		require.NoError(t, err)

		first, err := reg.Get(ctx, "test-provider")
		require.NoError(t, err)

		second, err := reg.Get(ctx, "test-provider")
		require.NoError(t, err)

		require.Same(t, first, second)
		require.Equal(t, 1, constructions)
	})

	t.Run("should not cache factory failures", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		calls := 0
		err := reg.Register(ctx, domain.Descriptor{
			Name:         "flaky",
			Capabilities: []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream},
			Factory: func() (domain.Provider, error) {
				calls++
				if calls == 1 {
					return nil, errors.New("backend not ready")
				}
				return &mockProvider{name: "flaky"}, nil
			},
		})
		require.NoError(t, err)

		_, err = reg.Get(ctx, "flaky")
		require.Error(t, err)

		provider, err := reg.Get(ctx, "flaky")
		require.NoError(t, err)
		require.Equal(t, "flaky", provider.Name())
		require.Equal(t, 2, calls)
	})

	t.Run("should return error when instance misses declared capability", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		err := reg.Register(ctx, domain.Descriptor{
			Name:         "overpromising",
			Capabilities: []domain.Capability{domain.CapabilityCompose, domain.CapabilityExecute},
			Factory: func() (domain.Provider, error) {
				return &mockProvider{
					name: "overpromising",
					caps: []domain.Capability{domain.CapabilityCompose},
				}, nil
			},
		})
		require.NoError(t, err)

		_, err = reg.Get(ctx, "overpromising")
		require.Error(t, err)
		require.Contains(t, err.Error(), "does not implement declared capability")
	})

	t.Run("should return provider matching its descriptor capabilities", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		caps := []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
		require.NoError(t, reg.Register(ctx, descriptorFor("test-provider", caps...)))

		provider, err := reg.Get(ctx, "test-provider")
		require.NoError(t, err)
		require.ElementsMatch(t, caps, provider.Capabilities())

		desc, err := reg.Describe(ctx, "test-provider")
		require.NoError(t, err)
		require.ElementsMatch(t, caps, desc.Capabilities)
	})

	t.Run("should return error when provider name is empty", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		_, err := reg.Get(ctx, "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "name cannot be empty")
	})

	t.Run("should return error when provider not found", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		_, err := reg.Get(ctx, "unregistered-name")
		require.Error(t, err)
		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})
}

func TestRegistry_List(t *testing.T) {
	t.Run("should return empty list when no providers registered", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		providers, err := reg.List(ctx)
		require.NoError(t, err)
		require.NotNil(t, providers)
		require.Empty(t, providers)
	})

	t.Run("should return names in registration order", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		for _, name := range []string{"gamma", "alpha", "beta"} {
			require.NoError(t, reg.Register(ctx, descriptorFor(name)))
		}

		providers, err := reg.List(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"gamma", "alpha", "beta"}, providers)
	})

	t.Run("should keep position on overwrite", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		require.NoError(t, reg.Register(ctx, descriptorFor("alpha")))
		require.NoError(t, reg.Register(ctx, descriptorFor("beta")))
		require.NoError(t, reg.Register(ctx, descriptorFor("alpha"), domain.WithOverwrite()))

		providers, err := reg.List(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"alpha", "beta"}, providers)
	})
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Run("should handle concurrent registrations safely", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		done := make(chan bool)

		for i := 0; i < 10; i++ {
			go func(idx int) {
				reg.Register(ctx, descriptorFor(fmt.Sprintf("provider-%d", idx)))
				done <- true
			}(i)
		}

		for i := 0; i < 10; i++ {
			<-done
		}

		providers, err := reg.List(ctx)
		require.NoError(t, err)
		require.Len(t, providers, 10)
	})

	t.Run("should construct once under concurrent lookups", func(t *testing.T) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		constructions := 0
		err := reg.Register(ctx, domain.Descriptor{
			Name:         "shared",
			Capabilities: []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream},
			Factory: func() (domain.Provider, error) {
				constructions++
				return &mockProvider{name: "shared"}, nil
			},
		})
		require.NoError(t, err)

		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func() {
				_, _ = reg.Get(ctx, "shared")
				done <- true
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}

		require.Equal(t, 1, constructions)
	})
}
