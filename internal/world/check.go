package world

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
)

type RollDiceInput struct {
	Expression string `json:"expression" jsonschema_description:"Dice expression such as 'd20', '2d6', or '3d8+2'."`
}

type PerformSkillCheckInput struct {
	EntityName string `json:"entity_name" jsonschema_description:"Name of the entity making the check."`
	Skill      string `json:"skill" jsonschema_description:"Skill name; the entity's skills.<name> stat is used as the modifier."`
	Difficulty int    `json:"difficulty" jsonschema_description:"Target number the check must meet or beat."`
}

func (p *Provider) rollDiceDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "roll_dice",
		Description: "Roll dice with a standard expression and return the individual rolls and total.",
		InputSchema: tooling.GenerateSchema[RollDiceInput](),
		Handler:     p.rollDice,
	}
}

func (p *Provider) rollDice(_ context.Context, input json.RawMessage) (any, error) {
	var in RollDiceInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	return p.roll(in.Expression)
}

func (p *Provider) performSkillCheckDefinition() tooling.Definition {
	return tooling.Definition{
		Name:        "perform_skill_check",
		Description: "Roll a d20 skill check for an entity against a difficulty. The entity's skill modifier is applied automatically.",
		InputSchema: tooling.GenerateSchema[PerformSkillCheckInput](),
		Handler:     p.performSkillCheck,
	}
}

func (p *Provider) performSkillCheck(ctx context.Context, input json.RawMessage) (any, error) {
	var in PerformSkillCheckInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	if in.Skill == "" {
		return nil, fmt.Errorf("skill is required")
	}

	modifier := 0
	stat, err := p.store.EntityStat(ctx, in.EntityName, "skills."+in.Skill)
	if err != nil {
		return nil, err
	}
	if stat.Exists() {
		modifier = int(stat.Int())
	}

	roll, err := p.roll("d20")
	if err != nil {
		return nil, err
	}
	total := roll.Total + modifier
	return map[string]any{
		"entity":     in.EntityName,
		"skill":      in.Skill,
		"roll":       roll.Total,
		"modifier":   modifier,
		"total":      total,
		"difficulty": in.Difficulty,
		"success":    total >= in.Difficulty,
	}, nil
}
