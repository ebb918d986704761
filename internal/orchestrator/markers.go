package orchestrator

import "strings"

// markerState names the four states of the incremental tag scanner per
// SPEC_FULL.md §4.12: outside -> opening_tag -> collecting_body -> closing_tag.
type markerState int

const (
	stateOutside markerState = iota
	stateOpeningTag
	stateCollectingBody
	stateClosingTag
)

// TagScanner incrementally detects `<open>...<close>` blocks across a stream
// of text chunks, so a marker split across two chunks is still found
// deterministically. Text outside a detected block is returned immediately
// as visible output; a detected block's body is returned once its closing
// tag completes.
type TagScanner struct {
	open, close string
	state       markerState
	matchPos    int
	body        strings.Builder
	closeBuf    strings.Builder
}

// NewTagScanner constructs a scanner for one open/close tag pair.
func NewTagScanner(open, close string) *TagScanner {
	return &TagScanner{open: open, close: close, state: stateOutside}
}

// Feed processes the next chunk of streamed text, returning any visible
// (non-tagged) text and the bodies of any tag blocks that completed within
// this call.
func (s *TagScanner) Feed(chunk string) (visible string, completed []string) {
	var out strings.Builder

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		switch s.state {
		case stateOutside, stateOpeningTag:
			if c == s.open[s.matchPos] {
				s.matchPos++
				if s.matchPos == len(s.open) {
					s.state = stateCollectingBody
					s.matchPos = 0
					s.body.Reset()
				} else {
					s.state = stateOpeningTag
				}
				continue
			}
			// false start: the partially matched prefix was plain text
			if s.matchPos > 0 {
				out.WriteString(s.open[:s.matchPos])
				s.matchPos = 0
				s.state = stateOutside
			}
			if c == s.open[0] {
				s.matchPos = 1
				s.state = stateOpeningTag
				if s.matchPos == len(s.open) { // single-byte open tag, degenerate
					s.state = stateCollectingBody
					s.matchPos = 0
					s.body.Reset()
				}
			} else {
				out.WriteByte(c)
			}

		case stateCollectingBody:
			if c == s.close[0] {
				s.state = stateClosingTag
				s.matchPos = 1
				s.closeBuf.Reset()
				s.closeBuf.WriteByte(c)
				if s.matchPos == len(s.close) {
					completed = append(completed, s.body.String())
					s.state = stateOutside
					s.matchPos = 0
				}
			} else {
				s.body.WriteByte(c)
			}

		case stateClosingTag:
			if c == s.close[s.matchPos] {
				s.matchPos++
				s.closeBuf.WriteByte(c)
				if s.matchPos == len(s.close) {
					completed = append(completed, s.body.String())
					s.state = stateOutside
					s.matchPos = 0
					s.body.Reset()
				}
				continue
			}
			// false alarm: the buffered closing-tag prefix was body content
			s.body.WriteString(s.closeBuf.String())
			s.closeBuf.Reset()
			s.state = stateCollectingBody
			s.matchPos = 0
			if c == s.close[0] {
				s.state = stateClosingTag
				s.matchPos = 1
				s.closeBuf.WriteByte(c)
			} else {
				s.body.WriteByte(c)
			}
		}
	}

	return out.String(), completed
}

const (
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"
	thinkingOpen  = "<thinking>"
	thinkingClose = "</thinking>"
)
