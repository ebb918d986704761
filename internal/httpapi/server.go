// Package httpapi implements C13: the gateway's REST and SSE surface over
// C3-C12, a chi router in the teacher's middleware-chain idiom with its own
// Start/Shutdown lifecycle grounded on pkg/server.HTTPServer.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/authn"
	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/mcp"
	"github.com/ragchat/gateway/internal/observability"
	"github.com/ragchat/gateway/internal/orchestrator"
	"github.com/ragchat/gateway/internal/store"
)

// Config carries C13's own tunables, sourced from C1 settings' http.* keys.
type Config struct {
	Address         string // host:port
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is C13: it owns the chi router, the *http.Server, and every
// dependency a route handler needs.
type Server struct {
	cfg     Config
	logger  hclog.Logger
	server  *http.Server
	metrics *observability.Metrics

	store    *store.Store
	models   *llm.Registry
	mcp      *mcp.Client
	orch     *orchestrator.Orchestrator
	validator authn.Validator // nil disables auth (demo mode)
}

// New constructs the server and builds its router. Call Start to serve.
func New(cfg Config, logger hclog.Logger, metrics *observability.Metrics, st *store.Store, models *llm.Registry, mcpClient *mcp.Client, orch *orchestrator.Orchestrator, validator authn.Validator) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg: cfg, logger: logger.Named("httpapi"), metrics: metrics,
		store: st, models: models, mcp: mcpClient, orch: orch, validator: validator,
	}
}

// router assembles chi's middleware chain (order: request-id -> recover ->
// cors -> logging -> routes, with auth applied only to the protected
// sub-router) and every route from SPEC_FULL.md §6.1's table.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	// Stream consumption is authenticated by the opaque session token
	// itself (minted only to a caller who already passed /api/chat's
	// auth), not by a bearer header, per SPEC_FULL.md §4.12.
	r.Get("/stream/{token}", s.handleStream)
	r.Get("/stream/mcp/{token}", s.handleStream)

	r.Route("/api", func(api chi.Router) {
		if s.validator != nil {
			api.Use(authn.Middleware(s.validator, func(w http.ResponseWriter, e *gatewayerr.Error) {
				writeError(w, s.logger, e)
			}))
		}

		api.Route("/chat", func(chat chi.Router) {
			chat.Post("/direct", s.handleChatDirect)
			chat.Route("/conversations", func(conv chi.Router) {
				conv.Get("/", s.handleListConversations)
				conv.Post("/", s.handleCreateConversation)
				conv.Get("/{id}", s.handleGetConversation)
				conv.Patch("/{id}", s.handleUpdateConversation)
				conv.Delete("/{id}", s.handleDeleteConversation)
				conv.Get("/{id}/messages", s.handleListMessages)
				conv.Post("/{id}/messages", s.handleAddMessage)
				conv.Post("/{id}/prepare-stream", s.handlePrepareStream)
				conv.Post("/{id}/prepare-mcp-stream", s.handlePrepareMCPStream)
			})
		})

		api.Route("/mcp", func(m chi.Router) {
			m.Get("/tools", s.handleListTools)
			m.Post("/execute", s.handleExecuteTool)
			m.Get("/approvals/pending", s.handleListPendingApprovals)
			m.Post("/approvals/{id}/approve", s.handleApproveApproval)
			m.Post("/approvals/{id}/execute", s.handleExecuteApproval)
		})

		api.Get("/search", s.handleSearch)
	})

	return r
}

// corsMiddleware mirrors the teacher's permissive-by-default CORS
// middleware, scoped to configured origins when set.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowed = ""
			for _, o := range s.cfg.CORSOrigins {
				if o == "*" || o == origin {
					allowed = origin
					break
				}
			}
		}
		if allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until ctx is cancelled, then gracefully shuts
// it down. Grounded on pkg/server.HTTPServer.Start's error-channel/select
// pattern.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("http server starting", "address", s.cfg.Address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully drains in-flight requests, bounded by
// cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"components": map[string]any{"llm": s.models.HealthCheck(r.Context())},
	})
}
