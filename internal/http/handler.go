package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	compose  *domain.ComposeService
	registry domain.ProviderRegistry
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(compose *domain.ComposeService, registry domain.ProviderRegistry) *Handler {
	return &Handler{
		compose:  compose,
		registry: registry,
	}
}

// composeRequest is the wire form of a composition request.
type composeRequest struct {
	Provider string         `json:"provider,omitempty"`
	Task     string         `json:"task"`
	Mode     domain.Mode    `json:"mode"`
	Context  map[string]any `json:"context,omitempty"`
	Stream   bool           `json:"stream,omitempty"`
}

// providerInfo is one entry of the provider listing.
type providerInfo struct {
	Name         string              `json:"name"`
	Capabilities []domain.Capability `json:"capabilities"`
}

// HandleCompose processes composition requests.
func (h *Handler) HandleCompose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Early validation.
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse request.
	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.Provider != "" {
		ctx = observability.WithProvider(ctx, req.Provider)
	}
	ctx = observability.WithMode(ctx, string(req.Mode))

	logger := observability.FromContext(ctx)
	logger.Info("compose request received",
		observability.String("provider", req.Provider),
		observability.String("mode", string(req.Mode)),
		observability.Bool("stream", req.Stream),
	)

	domainReq := &domain.ComposeRequest{
		Task:    req.Task,
		Mode:    req.Mode,
		Context: req.Context,
	}

	// Handle streaming vs non-streaming.
	if req.Stream {
		h.handleStream(ctx, w, req.Provider, domainReq)
		return
	}

	result, err := h.compose.Compose(ctx, req.Provider, domainReq)
	if err != nil {
		logger.Error("compose failed", observability.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	workflowName := ""
	if result.Workflow != nil {
		workflowName = result.Workflow.Name
	}
	logger.Info("compose succeeded",
		observability.String("workflow", workflowName),
		observability.Int("tokens", result.Usage.TotalTokens),
		observability.Float64("cost", result.Usage.Cost),
	)

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(result); encodeErr != nil {
		logger.Error("failed to encode response", observability.Error(encodeErr))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", encodeErr), http.StatusInternalServerError)
		return
	}
}

// handleStream writes the event feed as SSE: one JSON object per event,
// shaped {seq, kind, payload}, terminated by a final or error event.
func (h *Handler) handleStream(
	ctx context.Context,
	w http.ResponseWriter,
	provider string,
	req *domain.ComposeRequest,
) {
	logger := observability.FromContext(ctx)
	logger.Info("stream request started")

	events, err := h.compose.Stream(ctx, provider, req)
	if err != nil {
		logger.Error("stream failed", observability.Error(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event := range events {
		data, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			logger.Error("failed to encode event", observability.Error(marshalErr))
			return
		}

		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()

		if event.Kind.Terminal() {
			logger.Info("stream completed", observability.String("kind", string(event.Kind)))
			return
		}
	}
}

// HandleProviders lists registered providers and their capabilities.
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names, err := h.registry.List(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	providers := make([]providerInfo, 0, len(names))
	for _, name := range names {
		desc, descErr := h.registry.Describe(ctx, name)
		if descErr != nil {
			continue
		}
		providers = append(providers, providerInfo{
			Name:         desc.Name,
			Capabilities: desc.Capabilities,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"providers": providers}); err != nil {
		observability.FromContext(ctx).Error("failed to encode provider list", observability.Error(err))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidWorkflow):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBackendTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
