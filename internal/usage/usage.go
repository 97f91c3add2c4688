// Package usage accumulates model token consumption across calls.
package usage

import (
	"sync"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
)

// Tracker sums token usage. Safe for concurrent use; the zero value and a
// nil tracker are both usable.
type Tracker struct {
	mu     sync.Mutex
	input  int64
	output int64
	calls  int64
}

// Add records one completed model call.
func (t *Tracker) Add(u llm.Usage) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += u.InputTokens
	t.output += u.OutputTokens
	t.calls++
}

// Totals returns the accumulated input tokens, output tokens, and call count.
func (t *Tracker) Totals() (input, output, calls int64) {
	if t == nil {
		return 0, 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input, t.output, t.calls
}
