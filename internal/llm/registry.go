package llm

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ragchat/gateway/internal/gatewayerr"
	"golang.org/x/sync/errgroup"
)

// RefreshInterval is how stale the model index may get before get_all_models
// triggers an implicit refresh.
const RefreshInterval = 5 * time.Minute

// Registry aggregates adapters and maintains a model_name -> provider_name
// index, generalizing the teacher's generic BaseRegistry[T] to the
// domain-specific merge/refresh semantics C7 requires (first-registered
// wins on collision, stale-adapter entries retained on refresh failure).
type Registry struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	order       []string // registration order, for first-registered-wins
	index       map[string]string // model name -> provider name
	models      map[string][]ModelDescriptor
	lastRefresh time.Time
	logger      hclog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		index:    make(map[string]string),
		models:   make(map[string][]ModelDescriptor),
		logger:   logger.Named("llm.registry"),
	}
}

// Register adds an adapter under a unique provider name.
func (r *Registry) Register(name string, adapter Adapter) error {
	if name == "" {
		return gatewayerr.NewValidation("provider name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return gatewayerr.NewConflict("provider %q already registered", name)
	}
	r.adapters[name] = adapter
	r.order = append(r.order, name)
	return nil
}

// Unregister removes an adapter and its contributions to the model index.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; !exists {
		return gatewayerr.NewNotFound("provider %q not registered", name)
	}
	delete(r.adapters, name)
	delete(r.models, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.rebuildIndexLocked()
	return nil
}

// Refresh concurrently lists models for every enabled adapter and merges
// the results into the index. An adapter's failure does not abort the
// refresh; its prior entries are retained. Readers never observe a
// half-built index: the merge happens on a snapshot swapped in at the end.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	adapters := make(map[string]Adapter, len(order))
	for _, name := range order {
		adapters[name] = r.adapters[name]
	}
	prevModels := r.models
	r.mu.RUnlock()

	newModels := make(map[string][]ModelDescriptor, len(order))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range order {
		name, adapter := name, adapters[name]
		g.Go(func() error {
			if !adapter.IsEnabled() {
				return nil
			}
			descs, err := adapter.ListModels(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("list_models failed, retaining prior entries", "provider", name, "error", err)
				if prev, ok := prevModels[name]; ok {
					newModels[name] = prev
				}
				return nil
			}
			newModels[name] = descs
			return nil
		})
	}
	// errgroup aborts the group's context on first error, but every
	// goroutine above returns nil for its own failures, so Wait only
	// reports a genuine cancellation of ctx.
	if err := g.Wait(); err != nil {
		return err
	}

	index := make(map[string]string)
	for _, name := range order { // registration order: first-registered wins
		for _, d := range newModels[name] {
			if _, taken := index[d.Name]; !taken {
				index[d.Name] = name
			}
		}
	}

	r.mu.Lock()
	r.models = newModels
	r.index = index
	r.lastRefresh = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *Registry) rebuildIndexLocked() {
	index := make(map[string]string)
	for _, name := range r.order {
		for _, d := range r.models[name] {
			if _, taken := index[d.Name]; !taken {
				index[d.Name] = name
			}
		}
	}
	r.index = index
}

// GetAllModels returns the merged descriptor list, refreshing first if the
// index is empty or stale.
func (r *Registry) GetAllModels(ctx context.Context) ([]ModelDescriptor, error) {
	r.mu.RLock()
	stale := len(r.index) == 0 || time.Since(r.lastRefresh) > RefreshInterval
	r.mu.RUnlock()

	if stale {
		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ModelDescriptor
	for _, name := range r.order {
		out = append(out, r.models[name]...)
	}
	return out, nil
}

// GetProviderFor resolves a model name to its owning provider, or "" if
// unknown.
func (r *Registry) GetProviderFor(model string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index[model]
}

// adapterFor resolves model to its owning adapter. An unknown model
// triggers one Refresh before yielding model_not_found, in case the index
// is merely stale (a provider recently added the model, or this is the
// first request since a provider came up after the last refresh).
func (r *Registry) adapterFor(model string) (Adapter, string, error) {
	providerName := r.GetProviderFor(model)
	if providerName == "" {
		if err := r.Refresh(context.Background()); err != nil {
			return nil, "", gatewayerr.NewModelNotFound(model)
		}
		providerName = r.GetProviderFor(model)
		if providerName == "" {
			return nil, "", gatewayerr.NewModelNotFound(model)
		}
	}
	r.mu.RLock()
	adapter, ok := r.adapters[providerName]
	r.mu.RUnlock()
	if !ok {
		return nil, "", gatewayerr.NewModelNotFound(model)
	}
	if !adapter.IsEnabled() {
		return nil, "", gatewayerr.NewProviderDisabled(providerName)
	}
	return adapter, providerName, nil
}

// Describe returns the descriptor for a known model, refreshing once if the
// model isn't yet in the index, mirroring adapterFor's refresh-and-retry.
func (r *Registry) Describe(model string) (ModelDescriptor, bool) {
	if d, ok := r.describeLocked(model); ok {
		return d, true
	}
	if err := r.Refresh(context.Background()); err != nil {
		return ModelDescriptor{}, false
	}
	return r.describeLocked(model)
}

func (r *Registry) describeLocked(model string) (ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providerName, ok := r.index[model]
	if !ok {
		return ModelDescriptor{}, false
	}
	for _, d := range r.models[providerName] {
		if d.Name == model {
			return d, true
		}
	}
	return ModelDescriptor{}, false
}

// Chat resolves model to its provider and delegates.
func (r *Registry) Chat(ctx context.Context, model string, messages []Message, params Params) (*ChatResult, error) {
	adapter, _, err := r.adapterFor(model)
	if err != nil {
		return nil, err
	}
	return adapter.Chat(ctx, model, messages, params)
}

// ChatStream resolves model to its provider and delegates.
func (r *Registry) ChatStream(ctx context.Context, model string, messages []Message, params Params) (<-chan StreamChunk, error) {
	adapter, _, err := r.adapterFor(model)
	if err != nil {
		return nil, err
	}
	return adapter.ChatStream(ctx, model, messages, params)
}

// HealthReport is the outcome of HealthCheck.
type HealthReport struct {
	Overall   string
	Providers map[string]HealthStatus
}

// HealthCheck probes every registered adapter; overall is "healthy" if any
// enabled provider reports healthy.
func (r *Registry) HealthCheck(ctx context.Context) HealthReport {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	adapters := make(map[string]Adapter, len(order))
	for _, name := range order {
		adapters[name] = r.adapters[name]
	}
	r.mu.RUnlock()

	report := HealthReport{Overall: "unhealthy", Providers: make(map[string]HealthStatus, len(order))}
	for _, name := range order {
		adapter := adapters[name]
		if !adapter.IsEnabled() {
			report.Providers[name] = HealthStatus{Healthy: false, Detail: "disabled"}
			continue
		}
		status := adapter.HealthCheck(ctx)
		report.Providers[name] = status
		if status.Healthy {
			report.Overall = "healthy"
		}
	}
	return report
}
