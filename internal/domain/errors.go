package domain

import "errors"

// Sentinel errors for the composition gateway. Callers classify failures
// with errors.Is; call sites wrap these with fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidRequest indicates malformed caller input (empty task,
	// unknown mode). Not retryable.
	ErrInvalidRequest = errors.New("invalid compose request")

	// ErrInvalidWorkflow indicates a workflow artifact that fails
	// structural validation.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")

	// ErrProviderNotFound indicates a lookup for an unregistered name.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrDuplicateProvider indicates a registration conflict without an
	// explicit overwrite.
	ErrDuplicateProvider = errors.New("provider already registered")

	// ErrBackendUnavailable indicates the provider's model or service is
	// unreachable. Transient; retry is the caller's decision.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendTimeout indicates a caller-supplied deadline fired while
	// waiting on the backend.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrStreamProtocol indicates malformed or out-of-order events from a
	// backend. Fatal to the affected stream.
	ErrStreamProtocol = errors.New("stream protocol violation")

	// ErrCacheMiss indicates no cached plan was found.
	ErrCacheMiss = errors.New("cache miss")
)
