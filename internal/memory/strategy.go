package memory

import "strings"

// ConsolidationStrategy decides when the unconsolidated buffer should be
// folded into a memory trace.
type ConsolidationStrategy interface {
	// ShouldConsolidate reports whether the buffer is ready. The buffer is
	// always passed in turn order and may be empty.
	ShouldConsolidate(buffer []DialogueRecord) bool
	// Name identifies the strategy in logs and telemetry.
	Name() string
}

// TokenThresholdStrategy triggers once the buffer's estimated token cost
// reaches MaxTokens.
type TokenThresholdStrategy struct {
	MaxTokens int
}

func (s TokenThresholdStrategy) ShouldConsolidate(buffer []DialogueRecord) bool {
	return len(buffer) > 0 && EstimateBufferTokens(buffer) >= s.MaxTokens
}

func (s TokenThresholdStrategy) Name() string { return "token_threshold" }

// TopicEndStrategy triggers when the most recent record contains the topic
// end marker, so a scene can be summarized as soon as it closes.
type TopicEndStrategy struct {
	Marker string
}

// DefaultTopicMarker is the marker TopicEndStrategy falls back to when none
// is configured.
const DefaultTopicMarker = "<END_TOPIC>"

func (s TopicEndStrategy) ShouldConsolidate(buffer []DialogueRecord) bool {
	if len(buffer) == 0 {
		return false
	}
	marker := s.Marker
	if marker == "" {
		marker = DefaultTopicMarker
	}
	return strings.Contains(buffer[len(buffer)-1].Content, marker)
}

func (s TopicEndStrategy) Name() string { return "topic_end" }
