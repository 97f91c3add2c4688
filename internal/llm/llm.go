// Package llm defines the model streaming boundary.
//
// The orchestrator consumes a tagged-variant event stream: plain text deltas
// arrive as they are produced, and any tool calls the model requested arrive
// once, fully assembled, at stream end. Consumers switch on the event type;
// there is no "sometimes a string, sometimes a map" channel.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// ToolSchema describes one callable tool the model may request.
// The dispatcher and the model share this schema verbatim.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// ToolCall is a fully assembled tool request emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Event is one element of a model response stream.
//
// Exactly two variants exist: TextDelta and ToolCallBatch.
type Event interface {
	isEvent()
}

// TextDelta carries an incremental chunk of response text.
type TextDelta struct {
	Text string
}

// ToolCallBatch carries every tool call requested in the response.
// It is emitted at most once, after all text deltas.
type ToolCallBatch struct {
	Calls []ToolCall
}

func (TextDelta) isEvent()     {}
func (ToolCallBatch) isEvent() {}

// Usage reports token consumption for one completed response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Request is one model invocation.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSchema // empty slice disables tool use
	MaxTokens int
}

// Stream yields the events of one model response.
//
// Usage is only meaningful after Next has returned false with a nil Err.
type Stream interface {
	Next() bool
	Event() Event
	Err() error
	Usage() Usage
	Close() error
}

// Client is the model streaming interface the orchestrator depends on.
type Client interface {
	Chat(ctx context.Context, req Request) (Stream, error)
}

// Collect drains a full response into a single string, discarding any tool
// calls. Used by non-interactive callers such as the summarizer.
func Collect(ctx context.Context, c Client, req Request) (string, error) {
	stream, err := c.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		if td, ok := stream.Event().(TextDelta); ok {
			sb.WriteString(td.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
