// Package stub provides a testing provider that composes deterministic
// workflow plans without calling any external backend. It implements the
// domain.Provider interface entirely in-memory, for development and tests.
package stub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/observability"
)

const (
	providerName = "stub"
	eventDelay   = 5 * time.Millisecond
)

// Provider implements the domain.Provider interface for stub testing.
type Provider struct {
	name string

	// Plan overrides the generated workflow when set, so tests can pin an
	// exact artifact.
	Plan *domain.Workflow
}

// NewProvider creates a new stub provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		name: providerName,
	}
}

// Compose returns a deterministic plan derived from the task text.
func (p *Provider) Compose(ctx context.Context, req *domain.ComposeRequest) (*domain.ComposeResult, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return nil, err
	}

	if req.Mode == domain.ModeAct {
		return nil, fmt.Errorf("%w: stub provider cannot execute workflows", domain.ErrInvalidRequest)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("composing stub plan")

	wf := p.plan(req)

	return &domain.ComposeResult{
		ID:         fmt.Sprintf("stub-%d", time.Now().UnixNano()),
		Provider:   p.name,
		Mode:       req.Mode,
		Workflow:   wf,
		Usage:      usageFor(req.Task),
		FinishTime: time.Now(),
	}, nil
}

// Stream emits one partial event per plan step, then the final artifact.
func (p *Provider) Stream(ctx context.Context, req *domain.ComposeRequest) (<-chan domain.StreamEvent, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return nil, err
	}

	if req.Mode == domain.ModeAct {
		return nil, fmt.Errorf("%w: stub provider cannot execute workflows", domain.ErrInvalidRequest)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming stub plan")

	wf := p.plan(req)
	sink := domain.NewEventSink(0)

	go func() {
		defer sink.Close()

		for _, step := range wf.Steps {
			if !sink.Partial(ctx.Done(), map[string]any{"step": step.Name}) {
				return
			}
			time.Sleep(eventDelay)
		}

		sink.Final(ctx.Done(), wf)
	}()

	return sink.Events(), nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Capabilities returns the operations this provider supports.
func (p *Provider) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
}

func (p *Provider) plan(req *domain.ComposeRequest) *domain.Workflow {
	if p.Plan != nil {
		return p.Plan
	}

	return &domain.Workflow{
		Name:        slugify(req.Task),
		Description: req.Task,
		Steps: []domain.Step{
			{
				Name:    "run",
				Command: fmt.Sprintf("echo %q", req.Task),
				Output:  "RESULT",
			},
		},
	}
}

// slugify builds a workflow name from the first words of the task.
func slugify(task string) string {
	words := strings.Fields(strings.ToLower(task))
	const maxWords = 4
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	if len(words) == 0 {
		return "workflow"
	}
	return strings.Join(words, "-")
}

func usageFor(task string) domain.Usage {
	tokens := len(strings.Fields(task))
	return domain.Usage{
		PromptTokens:     tokens,
		CompletionTokens: tokens,
		TotalTokens:      tokens * 2,
		Cost:             0.0,
	}
}
