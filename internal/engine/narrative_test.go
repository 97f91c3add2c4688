package engine

import (
	"strings"
	"testing"
)

func collectFilter(t *testing.T, chunks []string) (*narrativeFilter, string) {
	t.Helper()
	var out strings.Builder
	f := newNarrativeFilter(func(s string) { out.WriteString(s) })
	for _, c := range chunks {
		f.Write(c)
	}
	f.Flush()
	return f, out.String()
}

func TestFilterEmitsOnlyDelimitedContent(t *testing.T) {
	f, out := collectFilter(t, []string{
		"I should check the desk first. <narrative>The drawer slides open.</narrative> done.",
	})
	if out != "The drawer slides open." {
		t.Errorf("got %q", out)
	}
	if !f.Seen() {
		t.Error("open tag should be marked seen")
	}
	if f.Narrative() != out {
		t.Error("captured narrative must match emitted text")
	}
}

func TestFilterHandlesTagsSplitAcrossDeltas(t *testing.T) {
	_, out := collectFilter(t, []string{
		"thinking <nar", "rat", "ive>Dust ", "stirs.</na", "rrative>",
	})
	if out != "Dust stirs." {
		t.Errorf("got %q", out)
	}
}

func TestFilterMissingCloseEmitsRemainderOnFlush(t *testing.T) {
	_, out := collectFilter(t, []string{"<narrative>The lamp gutters"})
	if out != "The lamp gutters" {
		t.Errorf("got %q", out)
	}
}

func TestFilterNoTagsEmitsNothing(t *testing.T) {
	f, out := collectFilter(t, []string{"plain text, no tags at all"})
	if out != "" {
		t.Errorf("got %q, want nothing", out)
	}
	if f.Seen() {
		t.Error("no open tag was present")
	}
}

func TestFilterDropsTextAfterClose(t *testing.T) {
	_, out := collectFilter(t, []string{
		"<narrative>done</narrative>", "<narrative>again</narrative>",
	})
	if out != "done" {
		t.Errorf("got %q", out)
	}
}
