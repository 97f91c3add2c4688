package engine

import (
	"strings"

	"github.com/glyphkeeper/glyphkeeper/internal/prompt"
)

// narrativeFilter is a streaming delimiter filter: text deltas go in, and
// only content between the narrative tags comes out through emit. Tags may
// arrive split across arbitrary delta boundaries, so the filter holds back
// a tail short enough to be a partial tag until it can be classified.
type narrativeFilter struct {
	emit func(string)

	pending  strings.Builder
	captured strings.Builder
	inside   bool
	seen     bool
	closed   bool
}

func newNarrativeFilter(emit func(string)) *narrativeFilter {
	return &narrativeFilter{emit: emit}
}

// Seen reports whether an opening tag was observed.
func (f *narrativeFilter) Seen() bool { return f.seen }

// Narrative returns everything emitted so far.
func (f *narrativeFilter) Narrative() string { return f.captured.String() }

func (f *narrativeFilter) Write(chunk string) {
	if f.closed || chunk == "" {
		return
	}
	f.pending.WriteString(chunk)
	f.drain(false)
}

// Flush classifies whatever is still held back at end of stream. An open
// narrative missing its closing tag is emitted in full rather than dropped.
func (f *narrativeFilter) Flush() {
	f.drain(true)
	f.pending.Reset()
}

func (f *narrativeFilter) drain(eof bool) {
	text := f.pending.String()
	for {
		if f.closed {
			text = ""
			break
		}
		if !f.inside {
			idx := strings.Index(text, prompt.NarrativeOpen)
			if idx < 0 {
				// Outside text is never emitted; keep only a tail that
				// could still start an opening tag.
				if !eof {
					text = tagTail(text, prompt.NarrativeOpen)
				} else {
					text = ""
				}
				break
			}
			f.inside = true
			f.seen = true
			text = text[idx+len(prompt.NarrativeOpen):]
			continue
		}

		idx := strings.Index(text, prompt.NarrativeClose)
		if idx < 0 {
			hold := ""
			if !eof {
				hold = tagTail(text, prompt.NarrativeClose)
			}
			f.send(text[:len(text)-len(hold)])
			text = hold
			break
		}
		f.send(text[:idx])
		f.closed = true
		text = text[idx+len(prompt.NarrativeClose):]
	}
	f.pending.Reset()
	f.pending.WriteString(text)
}

func (f *narrativeFilter) send(s string) {
	if s == "" {
		return
	}
	f.captured.WriteString(s)
	if f.emit != nil {
		f.emit(s)
	}
}

// tagTail returns the longest suffix of text that is a proper prefix of tag.
func tagTail(text, tag string) string {
	maxLen := len(tag) - 1
	if maxLen > len(text) {
		maxLen = len(text)
	}
	for n := maxLen; n > 0; n-- {
		if strings.HasPrefix(tag, text[len(text)-n:]) {
			return text[len(text)-n:]
		}
	}
	return ""
}
