// Package toolhost is the registry that binds named tools, their
// JSON-schema parameter descriptions, and their invocation functions,
// and exposes them to the chat orchestrator as an OpenAI-style "tools"
// list.
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/docassistant/docassistant/internal/telemetry"
	"github.com/docassistant/docassistant/pkg/apperrors"
)

// Metrics is the optional instrumentation hook for tool invocations. A
// nil Metrics (the default) costs nothing extra; Host never calls a
// nil Metrics value itself, but implementations should still be safe
// to use with a nil receiver for symmetry with the rest of the stack.
type Metrics interface {
	RecordInvocation(tool string, duration time.Duration, err error)
}

// InvokeFunc is a tool's implementation: it receives the authenticated
// username and the raw JSON arguments object, and returns its string
// output verbatim (tools choose their own serialization).
type InvokeFunc func(ctx context.Context, username string, args json.RawMessage) (string, error)

// Schema is the OpenAI-style function-tool schema surfaced to the
// chat completion request.
type Schema struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the {name, description, parameters} body of a tool
// schema.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type registeredTool struct {
	schema Schema
	invoke InvokeFunc
}

// Host is the tool registry consulted by the chat orchestrator.
type Host struct {
	mu      sync.RWMutex
	tools   map[string]registeredTool
	metrics Metrics
}

// New constructs an empty Host.
func New() *Host {
	return &Host{tools: make(map[string]registeredTool)}
}

// SetMetrics attaches an instrumentation sink. Passing nil disables
// instrumentation.
func (h *Host) SetMetrics(m Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}

// Register adds a tool. argsExample is reflected into a JSON schema
// via jsonschema.Reflector the way the teacher's config command does
// for its own configuration schema; pass a zero-value pointer to the
// tool's argument struct.
func (h *Host) Register(name, description string, argsExample any, invoke InvokeFunc) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(argsExample)
	schema.Version = ""
	schema.Title = ""

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[name] = registeredTool{
		schema: Schema{
			Type: "function",
			Function: FunctionSpec{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		},
		invoke: invoke,
	}
}

// Schemas returns every registered tool's schema, sorted by name for
// deterministic output.
func (h *Host) Schemas() []Schema {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]Schema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, h.tools[name].schema)
	}
	return schemas
}

// Invoke dispatches a tool call by name. An unknown tool name returns
// ErrToolArgInvalid rather than panicking, so the orchestrator can
// synthesize a tool-error message back into the chat history.
func (h *Host) Invoke(ctx context.Context, username, name string, args json.RawMessage) (string, error) {
	h.mu.RLock()
	tool, ok := h.tools[name]
	metrics := h.metrics
	h.mu.RUnlock()

	if !ok {
		return "", apperrors.ToolArgInvalidf("unknown tool %q", name)
	}

	ctx, span := telemetry.StartToolSpan(ctx, name, telemetry.Username(username))
	defer span.End()

	start := time.Now()
	output, err := tool.invoke(ctx, username, args)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	if metrics != nil {
		metrics.RecordInvocation(name, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("tool %q failed: %w", name, err)
	}
	return output, nil
}
