package mcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "does something useful for tests",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	skipped, err := r.Register("search", []Tool{sampleTool("web_search")})
	require.NoError(t, err)
	require.Empty(t, skipped)

	tool, ok := r.Get("search.web_search")
	require.True(t, ok)
	require.Equal(t, "web_search", tool.Name)
}

func TestRegistry_FirstServerWinsOnCollision(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", []Tool{sampleTool("web_search")})
	require.NoError(t, err)
	// second server registering under the same qualified name would
	// only happen if server names collided; simulate a direct collision
	// by re-registering under the same server name with the same tool.
	skipped, err := r.Register("a", []Tool{sampleTool("web_search")})
	require.NoError(t, err)
	require.Equal(t, []string{"a.web_search"}, skipped)
}

func TestRegistry_RejectsBadName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("a", []Tool{sampleTool("123-bad")})
	require.Error(t, err)
}

func TestRegistry_RejectsShortDescription(t *testing.T) {
	r := NewRegistry()
	tool := sampleTool("ok_name")
	tool.Description = "short"
	_, err := r.Register("a", []Tool{tool})
	require.Error(t, err)
}

func TestValidateArguments(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("search", []Tool{sampleTool("web_search")})
	require.NoError(t, err)

	errs, err := r.ValidateArguments("search.web_search", map[string]any{"query": "go modules"})
	require.NoError(t, err)
	require.Empty(t, errs)

	errs, err = r.ValidateArguments("search.web_search", map[string]any{})
	require.NoError(t, err)
	require.NotEmpty(t, errs)
}

func TestFormatForProvider(t *testing.T) {
	tool := &Tool{
		QualifiedName: "search.web_search",
		Description:   "searches the web",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filters": map[string]any{"type": "object"},
			},
		},
	}

	openai := FormatForProvider(tool, "openai-style")
	require.Equal(t, "function", openai["type"])

	anthropic := FormatForProvider(tool, "anthropic-style")
	require.Equal(t, "search_web_search", anthropic["name"])

	ollama := FormatForProvider(tool, "ollama-style")
	fn := ollama["function"].(map[string]any)
	params := fn["parameters"].(map[string]any)
	props := params["properties"].(map[string]any)
	filters := props["filters"].(map[string]any)
	require.Equal(t, "string", filters["type"])
}
