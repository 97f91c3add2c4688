package prompt

import "strings"

// Scene is the detected mode of the current beat of play. It only changes
// which narrative guidance the final instruction block carries.
type Scene string

const (
	SceneCombat        Scene = "combat"
	SceneDialogue      Scene = "dialogue"
	SceneInvestigation Scene = "investigation"
	SceneExploration   Scene = "exploration"
)

var (
	combatWords        = []string{"attack", "strike", "shoot", "stab", "flee", "fight", "dodge", "charge", "parry"}
	dialogueWords      = []string{"ask", "say", "tell", "talk", "greet", "persuade", "question", "reply"}
	investigationWords = []string{"examine", "inspect", "search", "look at", "study", "read", "investigate"}
)

// DetectScene classifies the player's raw text, falling back to location
// tags. Precedence is fixed: combat beats dialogue beats investigation, and
// exploration is the default.
func DetectScene(userText string, locationTags []string) Scene {
	text := strings.ToLower(userText)
	if containsAny(text, combatWords) {
		return SceneCombat
	}
	if containsAny(text, dialogueWords) {
		return SceneDialogue
	}
	if containsAny(text, investigationWords) {
		return SceneInvestigation
	}
	for _, tag := range locationTags {
		switch strings.ToLower(tag) {
		case "combat", "danger":
			return SceneCombat
		}
	}
	return SceneExploration
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord matches on word boundaries so "task" does not read as "ask".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func sceneGuidance(mode Scene) string {
	switch mode {
	case SceneCombat:
		return "Combat: short, urgent sentences. Concrete positions and stakes. Every blow lands somewhere specific."
	case SceneDialogue:
		return "Dialogue: keep each character's motives consistent with what is known about them. Let characters want things."
	case SceneInvestigation:
		return "Investigation: describe clues with precision. Never resolve the player's inference for them."
	default:
		return "Exploration: sensory pacing. Ground the scene in sight, sound, and smell before anything moves."
	}
}
