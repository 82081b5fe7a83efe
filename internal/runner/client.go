// Package runner provides the HTTP client for the workflow execution
// service. It submits a composed workflow and relays the service's SSE
// event feed, implementing the domain.WorkflowRunner interface.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/observability"
)

const doneMarker = "[DONE]"

// Config contains workflow runner client configuration.
type Config struct {
	URL        string `env:"RUNNER_URL"`
	APIKey     string `env:"RUNNER_API_KEY"`
	Name       string `env:"RUNNER_NAME"        envDefault:"default"`
	Timeout    int    `env:"RUNNER_TIMEOUT"     envDefault:"300"`
	MaxRetries int    `env:"RUNNER_MAX_RETRIES" envDefault:"3"`
}

// Client implements the domain.WorkflowRunner interface over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	runnerName string
	maxRetries int
	httpClient *http.Client
}

// NewClient creates a new runner client.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("runner URL is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(config.URL, "/"),
		apiKey:     config.APIKey,
		runnerName: config.Name,
		maxRetries: config.MaxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

// Execute submits the workflow for execution and relays its events. The
// returned channel closes when the run ends, the feed reports an error, or
// ctx is cancelled; the response body is released on every exit path.
func (c *Client) Execute(ctx context.Context, wf *domain.Workflow, params map[string]any) (<-chan domain.ExecutionEvent, error) {
	if wf == nil {
		return nil, errors.New("workflow cannot be nil")
	}

	body, err := encodeRequest(wf, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	logger.Info("workflow execution started",
		observability.String("workflow", wf.Name),
		observability.String("runner", c.runnerName),
	)

	events := make(chan domain.ExecutionEvent)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			switch {
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				if data == doneMarker {
					return
				}

				ev, terminal := parseDataLine(data)
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
				if terminal {
					return
				}

			case strings.HasPrefix(line, "event: "):
				eventType := strings.TrimPrefix(line, "event: ")
				if eventType != "end" && eventType != "error" {
					continue
				}
				select {
				case events <- domain.ExecutionEvent{Type: eventType}:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Warn("execution event feed ended abnormally", observability.Error(err))
			select {
			case events <- domain.ExecutionEvent{Type: "error", Data: map[string]any{"message": err.Error()}}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// post submits the execution request, retrying transient failures
// (connection errors, 429 and 5xx responses) up to the retry budget.
func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workflow?%s", c.baseURL, url.Values{
		"runner":  {c.runnerName},
		"command": {"execute_workflow"},
	}.Encode())

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, classifyContextError(ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "UserKey "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, classifyContextError(ctx.Err())
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: runner rejected credentials", domain.ErrBackendUnavailable)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("runner returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
			continue

		case resp.StatusCode >= http.StatusBadRequest:
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("%w: runner returned HTTP %d: %s",
				domain.ErrInvalidRequest, resp.StatusCode, strings.TrimSpace(string(payload)))
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, lastErr)
}

func encodeRequest(wf *domain.Workflow, params map[string]any) ([]byte, error) {
	payload := map[string]any{
		"name":        wf.Name,
		"description": wf.Description,
		"steps":       wf.Steps,
	}
	if wf.Params != nil {
		payload["params"] = wf.Params
	}
	if len(params) > 0 {
		payload["parameters"] = params
	}
	return json.Marshal(payload)
}

// parseDataLine decodes one SSE data payload. Payloads carrying an "end"
// flag or a "finishReason" terminate the feed.
func parseDataLine(data string) (domain.ExecutionEvent, bool) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(data), &decoded); err != nil {
		// Relay non-JSON payloads raw rather than dropping them.
		return domain.ExecutionEvent{Type: "raw", Data: map[string]any{"data": data}}, false
	}

	eventType, _ := decoded["type"].(string)
	if eventType == "" {
		eventType = "message"
	}

	terminal := decoded["end"] != nil || decoded["finishReason"] != nil

	return domain.ExecutionEvent{Type: eventType, Data: decoded}, terminal
}

func classifyContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
	}
	return err
}
