package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_FilePrecedence(t *testing.T) {
	s := NewFromJSON(`{"log_level":"info","context_message_limit":20}`)
	assert.Equal(t, "info", s.String("log_level", "warn"))
	assert.Equal(t, 20, s.Int("context_message_limit", 10))
}

func TestSettings_EnvOverridesFile(t *testing.T) {
	s := NewFromJSON(`{"log_level":"info"}`)
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, "debug", s.String("log_level", "warn"))
}

func TestSettings_MissingKeyReturnsDefault(t *testing.T) {
	s := NewFromJSON(`{}`)
	assert.Equal(t, "fallback", s.String("nope", "fallback"))
	assert.Equal(t, 42, s.Int("nope", 42))
	assert.True(t, s.Bool("nope", true))
}

func TestSettings_DottedPath(t *testing.T) {
	s := NewFromJSON(`{"llm_providers":{"openai":{"enabled":true,"base_url":"https://api.openai.com"}}}`)
	assert.True(t, s.Bool("llm_providers.openai.enabled", false))
	assert.Equal(t, "https://api.openai.com", s.String("llm_providers.openai.base_url", ""))
}

func TestSettings_EnvKeyDottedPath(t *testing.T) {
	t.Setenv("LLM_PROVIDERS_OPENAI_API_KEY", "sk-from-env")
	s := NewFromJSON(`{}`)
	assert.Equal(t, "sk-from-env", s.String("llm_providers.openai.api_key", ""))
}

func TestSettings_BoolCaseInsensitive(t *testing.T) {
	s := NewFromJSON(`{}`)
	t.Setenv("ENABLE_THINKING_MODE", "TRUE")
	assert.True(t, s.Bool("enable_thinking_mode", false))
	os.Unsetenv("ENABLE_THINKING_MODE")
	t.Setenv("ENABLE_THINKING_MODE", "0")
	assert.False(t, s.Bool("enable_thinking_mode", true))
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	t.Setenv("CONFIG_PATH", "does-not-exist.json")
	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", s.String("log_level", "info"))
}

func TestSettings_WithOverride(t *testing.T) {
	s := NewFromJSON(`{}`)
	s2 := s.WithOverride("stream_session_ttl_seconds", 300)
	assert.Equal(t, 300, s2.Int("stream_session_ttl_seconds", 0))
}
