package adk

import (
	"fmt"
	"sort"
	"strings"
)

// systemPrompt instructs the model to answer with nothing but a workflow
// definition the gateway can parse.
const systemPrompt = `You are a workflow composer. Given a task description,
respond with a single JSON object describing a workflow, and nothing else.

The object has this shape:

{
  "name": "short-kebab-case-name",
  "description": "what the workflow does",
  "params": {"PARAM_NAME": "default value"},
  "steps": [
    {
      "name": "unique-step-name",
      "description": "what the step does",
      "depends": ["earlier-step-name"],
      "output": "VARIABLE_NAME",
      "command": "shell command to run"
    }
  ]
}

Rules:
- every step needs a unique name and either a "command" or an "executor"
- "depends" may only reference other step names in the same workflow
- an "executor" is {"type": "command"|"tool"|"agent", "config": {...}}
- do not wrap the JSON in markdown fences or add commentary`

// buildUserPrompt renders the task plus any caller-supplied context values.
func buildUserPrompt(task string, context map[string]any) string {
	if len(context) == 0 {
		return task
	}

	// Sort keys so the prompt (and the plan cache key upstream) is stable.
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(task)
	builder.WriteString("\n\nContext:\n")
	for _, k := range keys {
		fmt.Fprintf(&builder, "- %s: %v\n", k, context[k])
	}
	return builder.String()
}

// extractJSON strips markdown fences and surrounding prose from a model
// reply, returning the outermost JSON object.
func extractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in model reply")
	}
	return content[start : end+1], nil
}
