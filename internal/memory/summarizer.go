package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
)

// Summarizer condenses a dialogue buffer into a single prose summary.
type Summarizer interface {
	Summarize(ctx context.Context, buffer []DialogueRecord) (string, error)
}

const summarizerSystem = `You are the archivist for a tabletop game session. Condense the
dialogue below into a single factual summary paragraph. Preserve concrete
events, named characters, locations, items gained or lost, and any promises
or threats made. Write in past tense. Do not invent details and do not
editorialize.`

// LLMSummarizer summarizes via a single non-streaming model call.
type LLMSummarizer struct {
	Client    llm.Client
	Model     string
	MaxTokens int
}

func (s *LLMSummarizer) Summarize(ctx context.Context, buffer []DialogueRecord) (string, error) {
	if len(buffer) == 0 {
		return "", fmt.Errorf("summarize: empty buffer")
	}
	var b strings.Builder
	for _, r := range buffer {
		fmt.Fprintf(&b, "[Turn %d] %s: %s\n", r.TurnNumber, r.Role, r.Content)
	}
	summary, err := llm.Collect(ctx, s.Client, llm.Request{
		Model:     s.Model,
		System:    summarizerSystem,
		MaxTokens: s.MaxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize dialogue: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("summarize dialogue: model returned no text")
	}
	return summary, nil
}
