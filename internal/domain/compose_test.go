package domain_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/provider/registry"
)

// fixtureProvider returns a pinned plan artifact and streams it, tracking
// open backend handles so tests can assert resource release.
type fixtureProvider struct {
	name        string
	plan        *domain.Workflow
	caps        []domain.Capability
	openHandles atomic.Int32
}

func (p *fixtureProvider) Compose(_ context.Context, req *domain.ComposeRequest) (*domain.ComposeResult, error) {
	return &domain.ComposeResult{
		ID:         "fixture-1",
		Provider:   p.name,
		Mode:       req.Mode,
		Workflow:   p.plan,
		FinishTime: time.Now(),
	}, nil
}

func (p *fixtureProvider) Stream(ctx context.Context, _ *domain.ComposeRequest) (<-chan domain.StreamEvent, error) {
	sink := domain.NewEventSink(0)
	p.openHandles.Add(1)

	go func() {
		defer sink.Close()
		defer p.openHandles.Add(-1)

		for _, step := range p.plan.Steps {
			if !sink.Partial(ctx.Done(), map[string]any{"step": step.Name}) {
				return
			}
		}
		sink.Final(ctx.Done(), p.plan)
	}()

	return sink.Events(), nil
}

func (p *fixtureProvider) Name() string { return p.name }

func (p *fixtureProvider) Capabilities() []domain.Capability {
	if p.caps != nil {
		return p.caps
	}
	return []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
}

// recordingCache is an in-memory domain.PlanCache for facade tests.
type recordingCache struct {
	entries map[string]*domain.ComposeResult
	sets    int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]*domain.ComposeResult{}}
}

func (c *recordingCache) Get(_ context.Context, provider string, req *domain.ComposeRequest) (*domain.ComposeResult, error) {
	if res, ok := c.entries[provider+"/"+req.Task]; ok {
		return res, nil
	}
	return nil, domain.ErrCacheMiss
}

func (c *recordingCache) Set(_ context.Context, provider string, req *domain.ComposeRequest, res *domain.ComposeResult, _ time.Duration) error {
	c.entries[provider+"/"+req.Task] = res
	c.sets++
	return nil
}

func fixedPlan() *domain.Workflow {
	return &domain.Workflow{
		Name: "backup",
		Steps: []domain.Step{
			{Name: "snapshot", Command: "snapshot.sh"},
			{Name: "upload", Command: "upload.sh", Depends: []string{"snapshot"}},
		},
	}
}

func newService(t *testing.T, provider *fixtureProvider, cache domain.PlanCache, opts domain.ComposeOptions) *domain.ComposeService {
	t.Helper()

	reg := registry.NewRegistry()
	err := reg.Register(context.Background(), domain.Descriptor{
		Name:         provider.name,
		Capabilities: provider.Capabilities(),
		Factory: func() (domain.Provider, error) {
			return provider, nil
		},
	})
	require.NoError(t, err)

	return domain.NewComposeService(reg, nil, cache, nil, opts)
}

func TestComposeService_Compose(t *testing.T) {
	t.Run("should surface the provider artifact unchanged", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		result, err := svc.Compose(context.Background(), "fixture", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: domain.ModePlan,
		})

		require.NoError(t, err)
		require.NotNil(t, result)
		require.Same(t, provider.plan, result.Workflow)
		require.Equal(t, []string{"snapshot", "upload"}, []string{
			result.Workflow.Steps[0].Name,
			result.Workflow.Steps[1].Name,
		})
	})

	t.Run("should reject empty task", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.Compose(context.Background(), "fixture", &domain.ComposeRequest{
			Task: "",
			Mode: domain.ModePlan,
		})

		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("should reject unknown mode", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.Compose(context.Background(), "fixture", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: "dream",
		})

		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("should reject nil request", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.Compose(context.Background(), "fixture", nil)

		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("should fail for unregistered provider", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.Compose(context.Background(), "unregistered-name", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: domain.ModePlan,
		})

		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})

	t.Run("should resolve default provider when name empty", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{DefaultProvider: "fixture"})

		result, err := svc.Compose(context.Background(), "", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: domain.ModePlan,
		})

		require.NoError(t, err)
		require.Equal(t, "fixture", result.Provider)
	})

	t.Run("should reject act mode for provider without execute capability", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.Compose(context.Background(), "fixture", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: domain.ModeAct,
		})

		require.ErrorIs(t, err, domain.ErrInvalidRequest)
		require.Contains(t, err.Error(), "does not support mode")
	})

	t.Run("should serve plan mode from cache on second call", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		cache := newRecordingCache()
		svc := newService(t, provider, cache, domain.ComposeOptions{PlanCacheTTL: time.Minute})

		req := &domain.ComposeRequest{Task: "Create a backup workflow", Mode: domain.ModePlan}

		first, err := svc.Compose(context.Background(), "fixture", req)
		require.NoError(t, err)
		require.Equal(t, 1, cache.sets)

		second, err := svc.Compose(context.Background(), "fixture", req)
		require.NoError(t, err)
		require.Same(t, first, second)
		require.Equal(t, 1, cache.sets)
	})
}

func TestComposeService_Stream(t *testing.T) {
	t.Run("should deliver ordered events with single terminal", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		events, err := svc.Stream(context.Background(), "fixture", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: domain.ModePlan,
		})
		require.NoError(t, err)

		var got []domain.StreamEvent
		for ev := range events {
			got = append(got, ev)
		}

		require.Len(t, got, 3)
		terminal := 0
		for i, ev := range got {
			require.Equal(t, i, ev.Seq)
			if ev.Kind.Terminal() {
				terminal++
				require.Equal(t, len(got)-1, i)
			}
		}
		require.Equal(t, 1, terminal)
		require.Equal(t, domain.EventFinal, got[len(got)-1].Kind)
	})

	t.Run("should release backend resources when abandoned", func(t *testing.T) {
		// A plan long enough that the consumer abandons mid-stream.
		plan := &domain.Workflow{Name: "long"}
		for i := 0; i < 100; i++ {
			plan.Steps = append(plan.Steps, domain.Step{Name: string(rune('a'+i%26)) + string(rune('0'+i/26)), Command: "true"})
		}

		provider := &fixtureProvider{name: "fixture", plan: plan}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		ctx, cancel := context.WithCancel(context.Background())
		events, err := svc.Stream(ctx, "fixture", &domain.ComposeRequest{
			Task: "Create a backup workflow",
			Mode: domain.ModePlan,
		})
		require.NoError(t, err)

		// Consume a couple of events, then walk away.
		<-events
		<-events
		cancel()

		require.Eventually(t, func() bool {
			return provider.openHandles.Load() == 0
		}, 2*time.Second, 10*time.Millisecond, "provider goroutine still holds its backend handle")
	})

	t.Run("should validate request before resolving provider", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.Stream(context.Background(), "fixture", &domain.ComposeRequest{Task: "", Mode: domain.ModePlan})
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestComposeService_GetProvider(t *testing.T) {
	t.Run("should pass through to registry", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		got, err := svc.GetProvider(context.Background(), "fixture")
		require.NoError(t, err)
		require.Equal(t, "fixture", got.Name())
	})

	t.Run("should fail identically to registry for unknown names", func(t *testing.T) {
		provider := &fixtureProvider{name: "fixture", plan: fixedPlan()}
		svc := newService(t, provider, nil, domain.ComposeOptions{})

		_, err := svc.GetProvider(context.Background(), "unregistered-name")
		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})
}
