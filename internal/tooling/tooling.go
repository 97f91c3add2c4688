// Package tooling defines tool contracts and the per-turn dispatch path.
//
// Includes:
//   - Definition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive a JSON Schema from a Go struct.
//   - Dispatcher: explicit name→handler table shared verbatim with the model.
//   - LoopGuard: repeated-call detection over a two-call window.
package tooling

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
)

// Handler executes one tool call. The input is the raw JSON arguments from
// the model; the returned value must be JSON-serializable.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Definition is one registered tool.
type Definition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// Schema returns the wire schema shared with the model.
func (d Definition) Schema() llm.ToolSchema {
	return llm.ToolSchema{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
}

// Result is the outcome of one tool invocation, always serializable, fed back
// to the model as an observation. Exactly one of Data or Reason is set.
type Result struct {
	OK     bool            `json:"ok"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Observation pairs a result with the tool that produced it for prompt
// re-assembly.
type Observation struct {
	Tool   string `json:"tool"`
	Result Result `json:"result"`
}

// GenerateSchema derives the JSON Schema for a tool input struct.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
