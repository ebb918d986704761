package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagScanner_SingleChunk(t *testing.T) {
	s := NewTagScanner(toolCallOpen, toolCallClose)
	visible, completed := s.Feed(`before <tool_call>{"name":"x"}</tool_call> after`)
	require.Equal(t, "before  after", visible)
	require.Equal(t, []string{`{"name":"x"}`}, completed)
}

func TestTagScanner_MarkerSplitAcrossChunks(t *testing.T) {
	s := NewTagScanner(toolCallOpen, toolCallClose)

	var visible string
	var completed []string

	v, c := s.Feed("hello <tool_")
	visible += v
	completed = append(completed, c...)

	v, c = s.Feed(`call>{"name":"y"}</tool_ca`)
	visible += v
	completed = append(completed, c...)

	v, c = s.Feed("ll> world")
	visible += v
	completed = append(completed, c...)

	require.Equal(t, "hello  world", visible)
	require.Equal(t, []string{`{"name":"y"}`}, completed)
}

func TestTagScanner_FalseStartIsEmittedAsText(t *testing.T) {
	s := NewTagScanner(toolCallOpen, toolCallClose)
	visible, completed := s.Feed("a <tool_foo> b")
	require.Equal(t, "a <tool_foo> b", visible)
	require.Empty(t, completed)
}

func TestTagScanner_FalseClosingTagIsBody(t *testing.T) {
	s := NewTagScanner(toolCallOpen, toolCallClose)
	visible, completed := s.Feed(`<tool_call>a</tool_b more</tool_call>`)
	require.Equal(t, "", visible)
	require.Equal(t, []string{"a</tool_b more"}, completed)
}

func TestTagScanner_MultipleBlocksInOneChunk(t *testing.T) {
	s := NewTagScanner(toolCallOpen, toolCallClose)
	visible, completed := s.Feed(`<tool_call>one</tool_call> mid <tool_call>two</tool_call>`)
	require.Equal(t, " mid ", visible)
	require.Equal(t, []string{"one", "two"}, completed)
}
