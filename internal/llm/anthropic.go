package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicClient adapts the Anthropic Messages API to the Client interface.
// The SDK reads ANTHROPIC_API_KEY from the environment.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient returns a client using the API key from the env.
func NewAnthropicClient() *AnthropicClient {
	c := anthropic.NewClient()
	return &AnthropicClient{client: &c}
}

// Chat starts a streaming Messages call.
func (a *AnthropicClient) Chat(ctx context.Context, req Request) (Stream, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  buildMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	raw := a.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{raw: raw}, nil
}

func buildMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func buildTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if t.InputSchema != nil {
			schema.Properties = t.InputSchema.Properties
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}})
	}
	return out
}

// anthropicStream pumps SSE events, forwarding text deltas as they arrive and
// accumulating the full message so tool calls can be delivered in one batch
// after the wire stream is drained.
type anthropicStream struct {
	raw *ssestream.Stream[anthropic.MessageStreamEventUnion]
	acc anthropic.Message

	cur       Event
	err       error
	drained   bool
	batchSent bool
}

func (s *anthropicStream) Next() bool {
	if s.err != nil {
		return false
	}
	for !s.drained {
		if !s.raw.Next() {
			s.drained = true
			if err := s.raw.Err(); err != nil {
				s.err = err
				return false
			}
			break
		}
		ev := s.raw.Current()
		if err := s.acc.Accumulate(ev); err != nil {
			s.err = err
			return false
		}
		if delta, ok := ev.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && td.Text != "" {
				s.cur = TextDelta{Text: td.Text}
				return true
			}
		}
	}

	if !s.batchSent {
		s.batchSent = true
		if calls := s.toolCalls(); len(calls) > 0 {
			s.cur = ToolCallBatch{Calls: calls}
			return true
		}
	}
	return false
}

func (s *anthropicStream) toolCalls() []ToolCall {
	var calls []ToolCall
	for _, block := range s.acc.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			calls = append(calls, ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: json.RawMessage(tu.JSON.Input.Raw()),
			})
		}
	}
	return calls
}

func (s *anthropicStream) Event() Event { return s.cur }
func (s *anthropicStream) Err() error   { return s.err }

func (s *anthropicStream) Usage() Usage {
	return Usage{
		InputTokens:  s.acc.Usage.InputTokens,
		OutputTokens: s.acc.Usage.OutputTokens,
	}
}

func (s *anthropicStream) Close() error { return s.raw.Close() }
