package world

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

type InspectTargetInput struct {
	TargetName string `json:"target_name" jsonschema_description:"Name of the entity to inspect."`
}

// hiddenStatKeys are stripped from inspection results; they reach the model
// only through the secret context section.
var hiddenStatKeys = []string{"secrets", "hidden"}

func (p *Provider) inspectTargetDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "inspect_target",
		Description: "Inspect a visible entity: its description, kind, tags, and public stats.",
		InputSchema: tooling.GenerateSchema[InspectTargetInput](),
		Handler:     p.inspectTarget,
	}
}

func (p *Provider) inspectTarget(ctx context.Context, input json.RawMessage) (any, error) {
	var in InspectTargetInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	e, err := p.store.EntityByName(ctx, in.TargetName)
	if err != nil {
		return nil, err
	}
	if e.Hidden {
		return nil, fmt.Errorf("entity %q not found", in.TargetName)
	}

	stats := e.Stats
	for _, key := range hiddenStatKeys {
		stats, err = sjson.Delete(stats, key)
		if err != nil {
			return nil, fmt.Errorf("strip stat %q: %w", key, err)
		}
	}
	return map[string]any{
		"name":        e.Name,
		"kind":        e.Kind,
		"description": e.Description,
		"tags":        e.Tags,
		"stats":       json.RawMessage(stats),
	}, nil
}
