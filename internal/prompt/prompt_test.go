package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/glyphkeeper/glyphkeeper/internal/memory"
	"github.com/glyphkeeper/glyphkeeper/internal/tooling"
	"github.com/glyphkeeper/glyphkeeper/internal/world"
)

func TestDetectScene(t *testing.T) {
	cases := []struct {
		text string
		tags []string
		want Scene
	}{
		{"I attack the cultist", nil, SceneCombat},
		{"I search the desk for anything in the drawers", nil, SceneInvestigation},
		{"I ask Alice about the fog", nil, SceneDialogue},
		{"I walk toward the lighthouse", nil, SceneExploration},
		// Combat keywords win over dialogue keywords.
		{"I say nothing and attack", nil, SceneCombat},
		// Tag fallback only applies when no keyword matched.
		{"I hold my breath", []string{"danger"}, SceneCombat},
		{"I ask for parley", []string{"combat"}, SceneDialogue},
		// Substrings inside larger words do not count.
		{"I finish the task", nil, SceneExploration},
	}
	for _, tc := range cases {
		if got := DetectScene(tc.text, tc.tags); got != tc.want {
			t.Errorf("DetectScene(%q, %v) = %s, want %s", tc.text, tc.tags, got, tc.want)
		}
	}
}

func baseInput() Input {
	return Input{
		Actor: "Rowan",
		World: world.Snapshot{
			Location:     "The Study",
			Description:  "A cramped room lined with books.",
			LocationTags: []string{"indoor"},
			Present:      []string{"Alice (character)"},
			ActorStats:   `{"hp":12}`,
		},
		Context: memory.DualContext{
			Lore:     "The lighthouse predates the town.",
			Episodic: memory.PlaceholderEpisodic,
			Secrets:  memory.PlaceholderSecrets,
		},
		History: []memory.DialogueRecord{
			{Role: "user", Content: "I enter the study."},
			{Role: "assistant", Content: "Dust stirs as the door opens."},
		},
		UserText: "I search the desk",
		Mode:     SceneInvestigation,
	}
}

func TestBuildLayerOrder(t *testing.T) {
	out := Build(baseInput())

	order := []string{
		"You are the Keeper",
		"# World state",
		"# Knowledge",
		"# Recent dialogue",
		"# Player action",
		"# Instruction",
	}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		if idx < 0 {
			t.Fatalf("prompt missing %q", marker)
		}
		if idx < last {
			t.Errorf("%q appears out of order", marker)
		}
		last = idx
	}
}

func TestBuildKnowledgeSectionsAlwaysPresent(t *testing.T) {
	in := baseInput()
	out := Build(in)

	for _, want := range []string{"## Lore", "## Recent events", "## Keeper secrets",
		in.Context.Lore, memory.PlaceholderEpisodic, memory.PlaceholderSecrets} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSelectsDecisionVariant(t *testing.T) {
	out := Build(baseInput())
	if !strings.Contains(out, "you MUST call the appropriate tool") {
		t.Error("prompt without observations should carry the decision directive")
	}
	if strings.Contains(out, "# Observations") {
		t.Error("prompt without observations should have no observation block")
	}
	// A no-tool turn resolves on round one, so the decision variant must
	// teach the delimiter contract too.
	if !strings.Contains(out, NarrativeOpen) || !strings.Contains(out, NarrativeClose) {
		t.Error("decision variant should name the narrative delimiter tags")
	}
}

func TestBuildSelectsNarrativeVariant(t *testing.T) {
	in := baseInput()
	in.Observations = []tooling.Observation{
		{Tool: "get_location_stat", Result: tooling.Result{OK: true, Data: json.RawMessage(`{"value":3}`)}},
		{Tool: "roll_dice", Result: tooling.Result{OK: false, Reason: "invalid arguments"}},
	}
	out := Build(in)

	if !strings.Contains(out, "# Observations") {
		t.Fatal("prompt should carry the observation block")
	}
	if !strings.Contains(out, `get_location_stat -> {"ok":true,"data":{"value":3}}`) {
		t.Errorf("observation not rendered:\n%s", out)
	}
	if !strings.Contains(out, NarrativeOpen) {
		t.Error("narrative variant should name the delimiter tags")
	}
	if strings.Contains(out, "you MUST call the appropriate tool") {
		t.Error("narrative variant should not carry the decision directive")
	}
}

func TestBuildFinalRoundAppendsStopDirective(t *testing.T) {
	in := baseInput()
	in.FinalRound = true
	out := Build(in)
	if !strings.Contains(out, "Stop calling tools") {
		t.Error("final round should append the stop directive")
	}
}

func TestBuildIsPure(t *testing.T) {
	in := baseInput()
	if Build(in) != Build(in) {
		t.Error("Build must be deterministic for identical inputs")
	}
}
