// Package rules exposes rulebook lookup as a tool group, backed by the
// rules domain of the knowledge store.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/knowledge"
	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

type ConsultRulebookInput struct {
	Question string `json:"question" jsonschema_description:"The rules question, e.g. 'how does a stealth check work'."`
}

// Provider is the rule-lookup tool group.
type Provider struct {
	engine *knowledge.Engine
	topK   int
	log    *zap.Logger
}

// NewProvider returns a provider over the rules knowledge domain.
func NewProvider(engine *knowledge.Engine, topK int, log *zap.Logger) *Provider {
	if topK <= 0 {
		topK = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{engine: engine, topK: topK, log: log}
}

// Definitions returns the rule tool group for dispatcher registration.
func (p *Provider) Definitions() []tooling.Definition {
	return []tooling.Definition{
		{
			Name:        "consult_rulebook",
			Description: "Look up how a game rule works. Returns the most relevant rulebook passages.",
			InputSchema: tooling.GenerateSchema[ConsultRulebookInput](),
			Handler:     p.consultRulebook,
		},
	}
}

func (p *Provider) consultRulebook(ctx context.Context, input json.RawMessage) (any, error) {
	var in ConsultRulebookInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	bundle, err := p.engine.Query(ctx, in.Question, p.topK)
	if err != nil {
		return nil, fmt.Errorf("rulebook lookup: %w", err)
	}
	if bundle == "" {
		return map[string]any{"question": in.Question, "passages": []string{},
			"note": "no matching rule found"}, nil
	}

	var passages []string
	for _, line := range strings.Split(bundle, "\n") {
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			passages = append(passages, rest)
		}
	}
	return map[string]any{"question": in.Question, "passages": passages}, nil
}
