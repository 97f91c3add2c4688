// Package llmtest provides a scripted Client for tests.
package llmtest

import (
	"context"
	"errors"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
)

// Response scripts one model round. Text is split into small deltas to
// exercise streaming consumers; Calls, when present, arrive as a single
// batch after the text. Err aborts the stream mid-flight.
type Response struct {
	Text  string
	Calls []llm.ToolCall
	Err   error
	Usage llm.Usage
}

// Fake replays scripted responses in order and records every request.
type Fake struct {
	Responses []Response
	Requests  []llm.Request

	next int
}

// Chat pops the next scripted response.
func (f *Fake) Chat(_ context.Context, req llm.Request) (llm.Stream, error) {
	f.Requests = append(f.Requests, req)
	if f.next >= len(f.Responses) {
		return nil, errors.New("llmtest: no scripted response left")
	}
	r := f.Responses[f.next]
	f.next++
	return newStream(r), nil
}

const deltaSize = 7 // arbitrary small chunk to exercise delta handling

func newStream(r Response) *stream {
	var events []llm.Event
	for text := r.Text; text != ""; {
		n := deltaSize
		if n > len(text) {
			n = len(text)
		}
		events = append(events, llm.TextDelta{Text: text[:n]})
		text = text[n:]
	}
	if len(r.Calls) > 0 {
		events = append(events, llm.ToolCallBatch{Calls: r.Calls})
	}
	return &stream{events: events, failWith: r.Err, usage: r.Usage}
}

type stream struct {
	events   []llm.Event
	failWith error
	usage    llm.Usage

	pos int
	cur llm.Event
	err error
}

func (s *stream) Next() bool {
	if s.err != nil {
		return false
	}
	if s.pos >= len(s.events) {
		// Scripted failures surface after any preceding deltas were consumed.
		if s.failWith != nil {
			s.err = s.failWith
		}
		return false
	}
	s.cur = s.events[s.pos]
	s.pos++
	return true
}

func (s *stream) Event() llm.Event { return s.cur }
func (s *stream) Err() error       { return s.err }
func (s *stream) Usage() llm.Usage { return s.usage }
func (s *stream) Close() error     { return nil }
