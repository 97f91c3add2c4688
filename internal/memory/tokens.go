package memory

import "unicode/utf8"

// recordOverhead approximates the per-message framing cost a chat API adds
// around each turn.
const recordOverhead = 4

// EstimateTokens approximates the token cost of a record from its rune
// count. Real tokenization is model-specific; consolidation only needs a
// stable monotonic proxy, so a cheap local estimate is fine.
func EstimateTokens(r DialogueRecord) int {
	return utf8.RuneCountInString(string(r.Role)) + utf8.RuneCountInString(r.Content) + recordOverhead
}

// EstimateBufferTokens sums EstimateTokens over the buffer.
func EstimateBufferTokens(buffer []DialogueRecord) int {
	total := 0
	for _, r := range buffer {
		total += EstimateTokens(r)
	}
	return total
}
