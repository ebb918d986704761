package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregator_AccumulatesVisibleTextAndToolCalls(t *testing.T) {
	a := NewAggregator(false)

	toolCalls := a.ProcessTextDelta("he")
	require.Empty(t, toolCalls)
	toolCalls = a.ProcessTextDelta(`llo <tool_call>{"name":"search.web_search","arguments":{"q":"go"}}</tool_call> world`)
	require.Equal(t, []string{`{"name":"search.web_search","arguments":{"q":"go"}}`}, toolCalls)

	result := a.Close()
	require.Equal(t, "hello  world", result.VisibleText)
	require.Equal(t, []string{`{"name":"search.web_search","arguments":{"q":"go"}}`}, result.ToolCalls)
	require.Contains(t, result.RawText, "<tool_call>")
}

func TestAggregator_SplitsThinkingWhenEnabled(t *testing.T) {
	a := NewAggregator(true)
	a.ProcessTextDelta("<thinking>pondering</thinking>the answer is 4")

	result := a.Close()
	require.Equal(t, "the answer is 4", result.VisibleText)
	require.Equal(t, "pondering", result.ThinkingText)
}

func TestAggregator_ThinkingDisabledLeavesMarkersAsText(t *testing.T) {
	a := NewAggregator(false)
	a.ProcessTextDelta("<thinking>pondering</thinking>the answer is 4")

	result := a.Close()
	require.Equal(t, "<thinking>pondering</thinking>the answer is 4", result.VisibleText)
	require.Empty(t, result.ThinkingText)
}
