package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidbz/forgeflow/internal/observability"
)

// ComposeOptions carries facade settings sourced from configuration.
type ComposeOptions struct {
	// DefaultProvider resolves an empty provider name. When empty too, the
	// router picks a provider by capability.
	DefaultProvider string

	// PlanCacheTTL bounds the lifetime of cached plan artifacts.
	PlanCacheTTL time.Duration
}

// ComposeService orchestrates composition requests to providers. It
// validates input, resolves the named or default provider, and surfaces
// the provider's result unchanged. Retry policy belongs to the caller.
type ComposeService struct {
	registry ProviderRegistry
	router   Router
	cache    PlanCache
	events   EventPublisher
	opts     ComposeOptions
}

// NewComposeService creates a new compose service (DI constructor).
// cache and events may be nil to disable plan caching and event publishing.
func NewComposeService(
	registry ProviderRegistry,
	router Router,
	cache PlanCache,
	events EventPublisher,
	opts ComposeOptions,
) *ComposeService {
	return &ComposeService{
		registry: registry,
		router:   router,
		cache:    cache,
		events:   events,
		opts:     opts,
	}
}

// GetProvider resolves a provider by name, falling back to the configured
// default and then to capability routing when the name is empty.
func (s *ComposeService) GetProvider(ctx context.Context, name string) (Provider, error) {
	resolved, err := s.resolve(ctx, name, CapabilityCompose)
	if err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, resolved)
}

// Compose validates the request, resolves a provider and delegates.
func (s *ComposeService) Compose(ctx context.Context, providerName string, req *ComposeRequest) (*ComposeResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	name, err := s.resolve(ctx, providerName, requiredCapability(req.Mode))
	if err != nil {
		return nil, err
	}

	desc, err := s.registry.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if !desc.HasCapability(requiredCapability(req.Mode)) {
		return nil, fmt.Errorf("%w: provider %s does not support mode %q",
			ErrInvalidRequest, name, req.Mode)
	}

	ctx = observability.WithProvider(ctx, name)
	ctx = observability.WithMode(ctx, string(req.Mode))
	logger := observability.FromContext(ctx)

	// Plan artifacts are deterministic per task, so plan mode goes through
	// the cache. Act mode has side effects and always reaches the backend.
	if req.Mode == ModePlan && s.cache != nil {
		cached, cacheErr := s.cache.Get(ctx, name, req)
		if cacheErr != nil && !errors.Is(cacheErr, ErrCacheMiss) {
			logger.Warn("plan cache get failed, continuing without cache",
				observability.Error(cacheErr))
		}
		if cached != nil {
			logger.Info("plan cache hit")
			return cached, nil
		}
	}

	provider, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "compose.started", map[string]any{"provider": name, "mode": string(req.Mode)})

	result, err := provider.Compose(ctx, req)
	if err != nil {
		s.publish(ctx, "compose.failed", map[string]any{"provider": name, "error": err.Error()})
		return nil, fmt.Errorf("compose failed: %w", err)
	}

	s.publish(ctx, "compose.completed", map[string]any{
		"provider": name,
		"mode":     string(req.Mode),
		"tokens":   result.Usage.TotalTokens,
	})

	if req.Mode == ModePlan && s.cache != nil {
		if setErr := s.cache.Set(ctx, name, req, result, s.opts.PlanCacheTTL); setErr != nil {
			logger.Warn("failed to store plan in cache", observability.Error(setErr))
		}
	}

	return result, nil
}

// Stream validates the request, resolves a streaming provider and returns
// its event feed wrapped in a protocol guard: events are strictly ordered
// by sequence number starting at 0 and end with exactly one terminal
// event. Cancelling ctx abandons the stream and releases the provider's
// backend resources.
func (s *ComposeService) Stream(ctx context.Context, providerName string, req *ComposeRequest) (<-chan StreamEvent, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	name, err := s.resolve(ctx, providerName, CapabilityStream)
	if err != nil {
		return nil, err
	}

	desc, err := s.registry.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if !desc.HasCapability(CapabilityStream) {
		return nil, fmt.Errorf("%w: provider %s does not support streaming", ErrInvalidRequest, name)
	}
	if !desc.HasCapability(requiredCapability(req.Mode)) {
		return nil, fmt.Errorf("%w: provider %s does not support mode %q",
			ErrInvalidRequest, name, req.Mode)
	}

	ctx = observability.WithProvider(ctx, name)
	ctx = observability.WithMode(ctx, string(req.Mode))

	provider, err := s.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	events, err := provider.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to stream from provider: %w", err)
	}

	s.publish(ctx, "compose.stream.started", map[string]any{"provider": name, "mode": string(req.Mode)})

	return guardStream(ctx.Done(), events), nil
}

func (s *ComposeService) resolve(ctx context.Context, name string, capability Capability) (string, error) {
	if name != "" {
		return name, nil
	}
	if s.opts.DefaultProvider != "" {
		return s.opts.DefaultProvider, nil
	}
	if s.router != nil {
		return s.router.Route(ctx, capability)
	}
	return "", fmt.Errorf("%w: no provider named and no default configured", ErrProviderNotFound)
}

func (s *ComposeService) publish(ctx context.Context, eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, eventType, data)
}

// ValidateRequest checks a composition request against the input rules
// shared by the facade and every provider: the request must be non-nil,
// the task non-empty and the mode one of the enumerated values. Providers
// call this themselves so a directly obtained provider rejects bad input
// the same way the facade does.
func ValidateRequest(req *ComposeRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if req.Task == "" {
		return fmt.Errorf("%w: task cannot be empty", ErrInvalidRequest)
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	return nil
}

func requiredCapability(m Mode) Capability {
	if m == ModeAct {
		return CapabilityExecute
	}
	return CapabilityCompose
}
