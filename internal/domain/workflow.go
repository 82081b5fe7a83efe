package domain

import (
	"fmt"
)

// Executor types supported by workflow steps.
const (
	ExecutorCommand = "command"
	ExecutorTool    = "tool"
	ExecutorAgent   = "agent"
)

// Workflow is the structured artifact a provider composes from a task.
type Workflow struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Steps       []Step         `json:"steps"`
}

// Step is one unit of work inside a workflow. A step either carries an
// inline shell command or delegates to an executor.
type Step struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Depends     []string  `json:"depends,omitempty"`
	Output      string    `json:"output,omitempty"`
	Command     string    `json:"command,omitempty"`
	Executor    *Executor `json:"executor,omitempty"`
}

// Executor delegates a step to a typed runtime (tool container, agent, ...).
type Executor struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Validate checks the structural invariants of a workflow artifact:
// a non-empty name, at least one step, unique step names, dependencies
// that reference known steps, and known executor types.
func (w *Workflow) Validate() error {
	if w == nil {
		return fmt.Errorf("%w: workflow is nil", ErrInvalidWorkflow)
	}

	if w.Name == "" {
		return fmt.Errorf("%w: workflow name is required", ErrInvalidWorkflow)
	}

	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow %q has no steps", ErrInvalidWorkflow, w.Name)
	}

	names := make(map[string]bool, len(w.Steps))
	for _, step := range w.Steps {
		if step.Name == "" {
			return fmt.Errorf("%w: step name is required", ErrInvalidWorkflow)
		}
		if names[step.Name] {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidWorkflow, step.Name)
		}
		names[step.Name] = true

		if step.Command == "" && step.Executor == nil {
			return fmt.Errorf("%w: step %q has neither command nor executor", ErrInvalidWorkflow, step.Name)
		}

		if step.Executor != nil {
			switch step.Executor.Type {
			case ExecutorCommand, ExecutorTool, ExecutorAgent:
			default:
				return fmt.Errorf("%w: step %q has unknown executor type %q",
					ErrInvalidWorkflow, step.Name, step.Executor.Type)
			}
		}
	}

	for _, step := range w.Steps {
		for _, dep := range step.Depends {
			if !names[dep] {
				return fmt.Errorf("%w: step %q depends on unknown step %q",
					ErrInvalidWorkflow, step.Name, dep)
			}
		}
	}

	return nil
}
