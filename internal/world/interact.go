package world

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

type InteractWithCharacterInput struct {
	ActorName     string `json:"actor_name" jsonschema_description:"Name of the acting entity."`
	CharacterName string `json:"character_name" jsonschema_description:"Name of the character to interact with."`
	Interaction   string `json:"interaction" jsonschema_description:"What the actor says or does."`
}

func (p *Provider) interactWithCharacterDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "interact_with_character",
		Description: "Check whether an interaction with a character can happen and return the character's disposition. Both parties must be in the same location.",
		InputSchema: tooling.GenerateSchema[InteractWithCharacterInput](),
		Handler:     p.interactWithCharacter,
	}
}

func (p *Provider) interactWithCharacter(ctx context.Context, input json.RawMessage) (any, error) {
	var in InteractWithCharacterInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	actor, err := p.store.EntityByName(ctx, in.ActorName)
	if err != nil {
		return nil, err
	}
	target, err := p.store.EntityByName(ctx, in.CharacterName)
	if err != nil {
		return nil, err
	}
	if target.Hidden || actor.LocationID == "" || actor.LocationID != target.LocationID {
		return nil, fmt.Errorf("%q is not here", in.CharacterName)
	}

	disposition, err := p.store.EntityStat(ctx, target.Name, "disposition")
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"character":   target.Name,
		"interaction": in.Interaction,
		"reachable":   true,
	}
	if disposition.Exists() {
		out["disposition"] = disposition.Value()
	}
	return out, nil
}
