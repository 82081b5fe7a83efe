package domain

import "time"

// Mode selects how a provider treats a composition request.
type Mode string

const (
	// ModePlan composes a reviewable workflow artifact without side effects.
	ModePlan Mode = "plan"

	// ModeAct composes the workflow and executes it through the runner.
	ModeAct Mode = "act"
)

// Valid reports whether the mode is one of the enumerated values.
func (m Mode) Valid() bool {
	return m == ModePlan || m == ModeAct
}

// ComposeRequest represents a unified workflow composition request.
type ComposeRequest struct {
	Task    string         `json:"task"`
	Mode    Mode           `json:"mode"`
	Context map[string]any `json:"context,omitempty"`
}

// ComposeResult represents a terminal composition result.
type ComposeResult struct {
	ID         string           `json:"id"`
	Provider   string           `json:"provider"`
	Mode       Mode             `json:"mode"`
	Workflow   *Workflow        `json:"workflow"`
	Execution  *ExecutionResult `json:"execution,omitempty"`
	Usage      Usage            `json:"usage"`
	FinishTime time.Time        `json:"finish_time"`
}

// ExecutionResult summarizes an act-mode run of the composed workflow.
type ExecutionResult struct {
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"` // finished, failed
	Outputs     map[string]any `json:"outputs,omitempty"`
}

// EventKind classifies a stream event.
type EventKind string

const (
	// EventPartial carries an incremental, non-terminal payload.
	EventPartial EventKind = "partial"

	// EventFinal carries the terminal result payload.
	EventFinal EventKind = "final"

	// EventError terminates the stream with a failure.
	EventError EventKind = "error"
)

// Terminal reports whether the kind ends a stream.
func (k EventKind) Terminal() bool {
	return k == EventFinal || k == EventError
}

// StreamEvent represents a single ordered unit of a provider's response.
// Seq is monotonic starting at 0; exactly one terminal event (final or
// error) ends the stream and nothing follows it.
type StreamEvent struct {
	Seq     int       `json:"seq"`
	Kind    EventKind `json:"kind"`
	Payload any       `json:"payload,omitempty"`

	// Err carries the in-process error for EventError events. On the wire
	// only Payload (the error message) is serialized.
	Err error `json:"-"`
}

// ExecutionEvent is one raw event relayed from the workflow runner.
type ExecutionEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Usage tracks token consumption of the composing model.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}
