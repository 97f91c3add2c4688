package world

import (
	"context"
	"encoding/json"

	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

type MoveEntityInput struct {
	EntityName  string `json:"entity_name" jsonschema_description:"Name of the entity to move."`
	Destination string `json:"destination" jsonschema_description:"Name of the destination location."`
}

func (p *Provider) moveEntityDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "move_entity",
		Description: "Move an entity to another location. Fails if either the entity or the destination does not exist.",
		InputSchema: tooling.GenerateSchema[MoveEntityInput](),
		Handler:     p.moveEntity,
	}
}

func (p *Provider) moveEntity(ctx context.Context, input json.RawMessage) (any, error) {
	var in MoveEntityInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	if err := p.store.MoveEntity(ctx, in.EntityName, in.Destination); err != nil {
		return nil, err
	}
	return map[string]string{"entity": in.EntityName, "now_at": in.Destination}, nil
}
