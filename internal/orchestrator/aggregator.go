package orchestrator

import (
	"strings"
)

// Aggregator accumulates a streamed assistant response the way
// v2/model/aggregator.go's StreamingAggregator accumulates partial
// responses: ProcessTextDelta is called once per adapter chunk and returns
// any detected tool-call bodies; Close produces the single, non-partial
// result persisted after the stream ends.
//
// Two concerns are layered on top of plain accumulation, per
// SPEC_FULL.md §4.12 step 4-5: tool-call markers are stripped out of the
// visible text as they're detected, and — when thinking mode is enabled —
// <thinking>...</thinking> blocks are split out of the visible text too.
type Aggregator struct {
	thinkingEnabled bool
	toolScanner     *TagScanner
	thinkingScanner *TagScanner

	raw      strings.Builder
	visible  strings.Builder
	thinking strings.Builder
	toolCalls []string
}

// NewAggregator constructs an aggregator. thinkingEnabled mirrors the
// `enable_thinking_mode` setting.
func NewAggregator(thinkingEnabled bool) *Aggregator {
	return &Aggregator{
		thinkingEnabled: thinkingEnabled,
		toolScanner:     NewTagScanner(toolCallOpen, toolCallClose),
		thinkingScanner: NewTagScanner(thinkingOpen, thinkingClose),
	}
}

// ProcessTextDelta feeds one raw adapter chunk into the aggregator and
// returns the bodies of any tool-call markers that completed within it.
func (a *Aggregator) ProcessTextDelta(text string) []string {
	if text == "" {
		return nil
	}
	a.raw.WriteString(text)

	nonToolText, completedToolCalls := a.toolScanner.Feed(text)
	a.toolCalls = append(a.toolCalls, completedToolCalls...)

	if !a.thinkingEnabled {
		a.visible.WriteString(nonToolText)
		return completedToolCalls
	}

	visible, completedThinking := a.thinkingScanner.Feed(nonToolText)
	a.visible.WriteString(visible)
	for _, t := range completedThinking {
		a.thinking.WriteString(t)
	}
	return completedToolCalls
}

// Result is the final, non-partial aggregation produced by Close.
type Result struct {
	VisibleText  string
	ThinkingText string
	RawText      string
	ToolCalls    []string
}

// Close finalises the aggregation. Safe to call once per stream.
func (a *Aggregator) Close() *Result {
	return &Result{
		VisibleText:  a.visible.String(),
		ThinkingText: a.thinking.String(),
		RawText:      a.raw.String(),
		ToolCalls:    a.toolCalls,
	}
}
