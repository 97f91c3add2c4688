package world

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

type GetLocationViewInput struct {
	LocationName string `json:"location_name" jsonschema_description:"Name of the location to view."`
}

type GetLocationStatInput struct {
	EntityName string `json:"entity_name" jsonschema_description:"Name of the entity whose stats to read."`
	Stat       string `json:"stat,omitempty" jsonschema_description:"Optional stat path such as 'hp' or 'skills.stealth'; omit to read all stats."`
}

func (p *Provider) getLocationViewDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "get_location_view",
		Description: "Describe a location: its description, tags, and every visible entity present. Hidden entities are never listed.",
		InputSchema: tooling.GenerateSchema[GetLocationViewInput](),
		Handler:     p.getLocationView,
	}
}

func (p *Provider) getLocationView(ctx context.Context, input json.RawMessage) (any, error) {
	var in GetLocationViewInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	loc, err := p.store.LocationByName(ctx, in.LocationName)
	if err != nil {
		return nil, err
	}
	visible, err := p.store.VisibleAt(ctx, loc.ID)
	if err != nil {
		return nil, err
	}

	present := make([]map[string]string, 0, len(visible))
	for _, e := range visible {
		present = append(present, map[string]string{"name": e.Name, "kind": e.Kind})
	}
	return map[string]any{
		"location":    loc.Name,
		"description": loc.Description,
		"tags":        loc.Tags,
		"present":     present,
	}, nil
}

func (p *Provider) getLocationStatDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "get_location_stat",
		Description: "Read an entity's stats. Give a stat path for one value, or omit it for the full visible stat block.",
		InputSchema: tooling.GenerateSchema[GetLocationStatInput](),
		Handler:     p.getLocationStat,
	}
}

func (p *Provider) getLocationStat(ctx context.Context, input json.RawMessage) (any, error) {
	var in GetLocationStatInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	e, err := p.store.EntityByName(ctx, in.EntityName)
	if err != nil {
		return nil, err
	}
	if e.Hidden {
		return nil, fmt.Errorf("entity %q not found", in.EntityName)
	}

	// Same hidden-information policy as inspect_target: secret stat keys
	// never leave the store through this tool.
	stats := e.Stats
	for _, key := range hiddenStatKeys {
		stats, err = sjson.Delete(stats, key)
		if err != nil {
			return nil, fmt.Errorf("strip stat %q: %w", key, err)
		}
	}

	if in.Stat == "" {
		return map[string]any{"entity": e.Name, "stats": json.RawMessage(stats)}, nil
	}
	val := gjson.Get(stats, in.Stat)
	if !val.Exists() {
		return nil, fmt.Errorf("entity %q has no stat %q", in.EntityName, in.Stat)
	}
	return map[string]any{"entity": e.Name, "stat": in.Stat, "value": val.Value()}, nil
}
