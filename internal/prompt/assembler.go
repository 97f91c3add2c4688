// Package prompt assembles the keeper's system prompt for one model round
// and classifies the scene mode. Everything here is pure: same inputs, same
// string, no I/O.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/glyphkeeper/glyphkeeper/internal/memory"
	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
	"github.com/glyphkeeper/glyphkeeper/internal/world"
)

// Narrative delimiters. The model is instructed to wrap its final narration
// in these tags; the orchestrator streams only the delimited content.
const (
	NarrativeOpen  = "<narrative>"
	NarrativeClose = "</narrative>"
)

// Input carries everything one prompt build needs.
type Input struct {
	Actor        string
	World        world.Snapshot
	Context      memory.DualContext
	History      []memory.DialogueRecord
	UserText     string
	Observations []tooling.Observation
	Mode         Scene

	// FinalRound appends the stop directive for the forced last model call
	// of a turn, made with tools disabled.
	FinalRound bool
}

const identityBlock = `You are the Keeper, the game master of an ongoing tabletop session.
You narrate the world and its characters; the player narrates only their own character.

Non-negotiable rules:
- Be truthful to tool output. Never contradict or embellish a number, position, or outcome a tool reported.
- Never narrate the player's intent, decisions, or feelings. Describe what happens, not what they meant.
- Never reveal entities, tags, or facts marked hidden or secret unless a player action has directly uncovered them.
- Keep content within the bounds of the established fiction. No graphic cruelty beyond what the scene requires.`

const decisionDirective = `Decide what happens next. If the outcome depends on world state, a rule, chance, or another character, you MUST call the appropriate tool before narrating. Do not narrate outcomes you have not verified with a tool. If no tool is needed, write the narration addressed to the player inside ` + NarrativeOpen + ` and ` + NarrativeClose + ` tags; text outside the tags is your working space and will not be shown.`

const narrativeDirective = `Using the observations above, write the outcome. Wrap the final narration addressed to the player in ` + NarrativeOpen + ` and ` + NarrativeClose + ` tags. Text outside the tags is your working space and will not be shown.`

const stopDirective = `You have used all available tool calls for this turn. Stop calling tools. Output the final narrative now, inside ` + NarrativeOpen + ` tags, using only the observations you already have. If the investigation remains inconclusive, say so in the fiction.`

// Build assembles the full prompt in fixed layer order: identity, world
// state, knowledge sections, history, observations (when present), and the
// mode-specific final instruction.
func Build(in Input) string {
	var b strings.Builder

	b.WriteString(identityBlock)
	b.WriteString("\n\n")

	writeWorldBlock(&b, in.Actor, in.World)
	writeKnowledgeBlock(&b, in.Context)
	writeHistoryBlock(&b, in.History)

	if len(in.Observations) > 0 {
		writeObservationBlock(&b, in.Observations)
	}

	b.WriteString("# Player action\n")
	b.WriteString(in.UserText)
	b.WriteString("\n\n")

	b.WriteString("# Instruction\n")
	fmt.Fprintf(&b, "Scene mode: %s. %s\n\n", in.Mode, sceneGuidance(in.Mode))
	if len(in.Observations) > 0 {
		b.WriteString(narrativeDirective)
	} else {
		b.WriteString(decisionDirective)
	}
	if in.FinalRound {
		b.WriteString("\n\n")
		b.WriteString(stopDirective)
	}
	return b.String()
}

func writeWorldBlock(b *strings.Builder, actor string, snap world.Snapshot) {
	b.WriteString("# World state\n")
	fmt.Fprintf(b, "Player: %s\n", actor)
	if snap.Location != "" {
		fmt.Fprintf(b, "Location: %s\n", snap.Location)
		if snap.Description != "" {
			fmt.Fprintf(b, "Surroundings: %s\n", snap.Description)
		}
		if len(snap.LocationTags) > 0 {
			fmt.Fprintf(b, "Active tags: %s\n", strings.Join(snap.LocationTags, ", "))
		}
		if len(snap.Present) > 0 {
			fmt.Fprintf(b, "Present: %s\n", strings.Join(snap.Present, ", "))
		}
	} else {
		b.WriteString("Location: unknown\n")
	}
	if snap.ActorStats != "" && snap.ActorStats != "{}" {
		fmt.Fprintf(b, "Player condition: %s\n", snap.ActorStats)
	}
	b.WriteString("Anything marked hidden or secret stays unrevealed until the player's own actions uncover it.\n\n")
}

func writeKnowledgeBlock(b *strings.Builder, dc memory.DualContext) {
	b.WriteString("# Knowledge\n")
	b.WriteString("## Lore\n")
	b.WriteString(dc.Lore)
	b.WriteString("\n## Recent events\n")
	b.WriteString(dc.Episodic)
	b.WriteString("\n## Keeper secrets (never reveal directly)\n")
	b.WriteString(dc.Secrets)
	b.WriteString("\n\n")
}

func writeHistoryBlock(b *strings.Builder, history []memory.DialogueRecord) {
	b.WriteString("# Recent dialogue\n")
	if len(history) == 0 {
		b.WriteString("(session start)\n")
	}
	for _, r := range history {
		fmt.Fprintf(b, "%s: %s\n", r.Role, r.Content)
	}
	b.WriteString("\n")
}

func writeObservationBlock(b *strings.Builder, obs []tooling.Observation) {
	b.WriteString("# Observations\n")
	b.WriteString("Results of the tool calls you made this turn, in order:\n")
	for _, o := range obs {
		raw, err := json.Marshal(o.Result)
		if err != nil {
			raw = []byte(`{"ok":false,"reason":"unserializable result"}`)
		}
		fmt.Fprintf(b, "- %s -> %s\n", o.Tool, raw)
	}
	b.WriteString("\n")
}
