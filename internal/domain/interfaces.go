package domain

import (
	"context"
	"time"
)

// Capability declares one operation a provider supports.
type Capability string

const (
	// CapabilityCompose turns a task into a workflow artifact.
	CapabilityCompose Capability = "compose"

	// CapabilityExecute runs the composed workflow (act mode).
	CapabilityExecute Capability = "execute"

	// CapabilityStream delivers results as an ordered event feed.
	CapabilityStream Capability = "stream"
)

// Provider represents any workflow composition backend.
type Provider interface {
	// Compose turns a task description into a workflow artifact. In plan
	// mode the call has no side effects beyond the backend request; in act
	// mode the provider may also execute the artifact.
	Compose(ctx context.Context, req *ComposeRequest) (*ComposeResult, error)

	// Stream composes with incremental delivery. Events arrive strictly
	// ordered by Seq and end with exactly one terminal event. The provider
	// must release backend resources when ctx is cancelled.
	Stream(ctx context.Context, req *ComposeRequest) (<-chan StreamEvent, error)

	// Name returns the provider identifier.
	Name() string

	// Capabilities returns the operations this provider supports.
	Capabilities() []Capability
}

// Descriptor is the static registration record for one provider.
type Descriptor struct {
	Name         string
	Capabilities []Capability

	// Factory constructs the provider instance. It runs at most once per
	// registration: the registry caches the instance on first Get.
	Factory func() (Provider, error)
}

// HasCapability reports whether the descriptor declares the capability.
func (d Descriptor) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// RegisterOption configures a single Register call.
type RegisterOption func(*RegisterConfig)

// RegisterConfig holds Register call options.
type RegisterConfig struct {
	Overwrite bool
}

// WithOverwrite allows a registration to replace an existing descriptor
// with the same name. Without it, conflicts fail with ErrDuplicateProvider.
func WithOverwrite() RegisterOption {
	return func(c *RegisterConfig) {
		c.Overwrite = true
	}
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a descriptor. Duplicate names are rejected unless
	// WithOverwrite is given.
	Register(ctx context.Context, desc Descriptor, opts ...RegisterOption) error

	// Get returns the provider for a name, constructing and caching the
	// instance on first use.
	Get(ctx context.Context, name string) (Provider, error)

	// Describe returns the registered descriptor for a name.
	Describe(ctx context.Context, name string) (Descriptor, error)

	// List returns registered names in registration order.
	List(ctx context.Context) ([]string, error)
}

// Router selects a provider when the caller does not name one.
type Router interface {
	// Route returns the name of a provider advertising the capability.
	Route(ctx context.Context, capability Capability) (string, error)
}

// PlanCache caches plan-mode composition results.
type PlanCache interface {
	// Get retrieves a cached result for an identical request. Returns
	// ErrCacheMiss when absent.
	Get(ctx context.Context, provider string, req *ComposeRequest) (*ComposeResult, error)

	// Set stores a result with a TTL.
	Set(ctx context.Context, provider string, req *ComposeRequest, res *ComposeResult, ttl time.Duration) error
}

// WorkflowRunner executes a composed workflow on a remote runner service.
type WorkflowRunner interface {
	// Execute starts the workflow and relays its raw events. The channel
	// closes when the run ends or ctx is cancelled.
	Execute(ctx context.Context, wf *Workflow, params map[string]any) (<-chan ExecutionEvent, error)
}

// EventPublisher publishes lifecycle events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]any)
}
