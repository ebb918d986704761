package llm

import (
	"context"
	"testing"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name    string
	enabled bool
	models  []ModelDescriptor
	listErr error
}

func (f *fakeAdapter) ProviderName() string   { return f.name }
func (f *fakeAdapter) ProviderType() ProviderType { return ProviderTypeAPI }
func (f *fakeAdapter) IsEnabled() bool        { return f.enabled }
func (f *fakeAdapter) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}
func (f *fakeAdapter) Chat(ctx context.Context, model string, messages []Message, params Params) (*ChatResult, error) {
	return &ChatResult{Text: "ok from " + f.name}, nil
}
func (f *fakeAdapter) ChatStream(ctx context.Context, model string, messages []Message, params Params) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}
func (f *fakeAdapter) CountTokens(text, model string) (int, error) { return EstimateTokens(text), nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{Healthy: f.enabled}
}

func TestRegistry_FirstRegisteredWinsOnCollision(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeAdapter{name: "a", enabled: true, models: []ModelDescriptor{{Name: "shared-model", Provider: "a"}}}
	b := &fakeAdapter{name: "b", enabled: true, models: []ModelDescriptor{{Name: "shared-model", Provider: "b"}}}

	require.NoError(t, r.Register("a", a))
	require.NoError(t, r.Register("b", b))
	require.NoError(t, r.Refresh(context.Background()))

	require.Equal(t, "a", r.GetProviderFor("shared-model"))
}

func TestRegistry_RefreshRetainsPriorEntriesOnFailure(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeAdapter{name: "a", enabled: true, models: []ModelDescriptor{{Name: "m1", Provider: "a"}}}
	require.NoError(t, r.Register("a", a))
	require.NoError(t, r.Refresh(context.Background()))
	require.Equal(t, "a", r.GetProviderFor("m1"))

	a.listErr = assertErr
	require.NoError(t, r.Refresh(context.Background()))
	require.Equal(t, "a", r.GetProviderFor("m1"), "prior entries retained despite refresh failure")
}

var assertErr = &testError{}

type testError struct{}

func (*testError) Error() string { return "simulated list_models failure" }

func TestRegistry_UnknownModelNotFound(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Chat(context.Background(), "nope", nil, Params{})
	gerr, ok := gatewayerr.As(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindModelNotFound, gerr.Kind)
}

func TestRegistry_UnknownModelRefreshesBeforeNotFound(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeAdapter{name: "a", enabled: true, models: nil}
	require.NoError(t, r.Register("a", a))
	require.NoError(t, r.Refresh(context.Background()))
	require.Equal(t, "", r.GetProviderFor("late-model"))

	a.models = []ModelDescriptor{{Name: "late-model", Provider: "a"}}

	result, err := r.Chat(context.Background(), "late-model", nil, Params{})
	require.NoError(t, err)
	require.Equal(t, "ok from a", result.Text)
}

func TestRegistry_DisabledProviderYieldsProviderDisabled(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeAdapter{name: "a", enabled: false, models: []ModelDescriptor{{Name: "m1", Provider: "a"}}}
	require.NoError(t, r.Register("a", a))
	a.enabled = true
	require.NoError(t, r.Refresh(context.Background()))
	a.enabled = false

	_, err := r.Chat(context.Background(), "m1", nil, Params{})
	gerr, ok := gatewayerr.As(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindProviderDisabled, gerr.Kind)
}

func TestRegistry_HealthCheckOverall(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("a", &fakeAdapter{name: "a", enabled: false}))
	require.NoError(t, r.Register("b", &fakeAdapter{name: "b", enabled: true}))

	report := r.HealthCheck(context.Background())
	require.Equal(t, "healthy", report.Overall)
	require.False(t, report.Providers["a"].Healthy)
	require.True(t, report.Providers["b"].Healthy)
}
