// Command gatewayd is the retrieval-augmented chat gateway's server
// process.
//
// Usage:
//
//	gatewayd serve --config config.json
//	gatewayd validate --config config.json
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/ragchat/gateway/internal/authn"
	"github.com/ragchat/gateway/internal/config"
	"github.com/ragchat/gateway/internal/httpapi"
	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/llm/anthropic"
	"github.com/ragchat/gateway/internal/llm/gemini"
	"github.com/ragchat/gateway/internal/llm/ollama"
	"github.com/ragchat/gateway/internal/llm/openai"
	"github.com/ragchat/gateway/internal/mcp"
	"github.com/ragchat/gateway/internal/observability"
	"github.com/ragchat/gateway/internal/orchestrator"
	"github.com/ragchat/gateway/internal/sessionstore"
	"github.com/ragchat/gateway/internal/store"
)

// CLI is the top-level command set, in the teacher's kong CLI idiom.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the gateway's HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file and exit."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (trace, debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (json or console)." default:"json"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("gatewayd version %s\n", version)
	return nil
}

// ValidateCmd loads and decodes every subsystem's configuration without
// starting the server, catching misconfiguration before a deploy.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config != "" {
		if err := os.Setenv("CONFIG_PATH", cli.Config); err != nil {
			return err
		}
	}
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := buildDependencies(context.Background(), settings, observability.NewLogger(cli.LogLevel, cli.LogFormat)); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("configuration OK")
	return nil
}

// ServeCmd starts the HTTP server and blocks until a shutdown signal
// arrives.
type ServeCmd struct {
	Port int `help:"Override the configured HTTP port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := observability.NewLogger(cli.LogLevel, cli.LogFormat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if cli.Config != "" {
		if err := os.Setenv("CONFIG_PATH", cli.Config); err != nil {
			return err
		}
	}
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	deps, err := buildDependencies(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}

	address := settings.String("http.address", ":8080")
	if c.Port != 0 {
		address = fmt.Sprintf(":%d", c.Port)
	}

	httpServer := httpapi.New(httpapi.Config{
		Address:     address,
		CORSOrigins: settings.StringSlice("http.cors_origins", nil),
	}, observability.Named(logger, "http"), deps.metrics, deps.store, deps.models, deps.mcpClient, deps.orchestrator, deps.validator)

	logger.Info("gatewayd ready", "address", address)
	return httpServer.Start(ctx)
}

// dependencies is the fully wired object graph: C1 settings resolve every
// component constructor's configuration, in dependency order.
type dependencies struct {
	store        *store.Store
	models       *llm.Registry
	mcpClient    *mcp.Client
	orchestrator *orchestrator.Orchestrator
	metrics      *observability.Metrics
	validator    authn.Validator
}

func buildDependencies(ctx context.Context, settings *config.Settings, logger hclog.Logger) (*dependencies, error) {
	dbDialect := settings.String("database_dialect", "sqlite")
	dbURL := settings.String("database_url", "gateway.db")
	db, err := sql.Open(driverForDialect(dbDialect), dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	st, err := store.New(db, dbDialect, observability.Named(logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	models := llm.NewRegistry(observability.Named(logger, "llm.registry"))
	registerAdapters(models, settings, observability.Named(logger, "llm"))
	if err := models.Refresh(ctx); err != nil {
		logger.Warn("initial model registry refresh failed", "error", err)
	}

	transport := mcp.NewTransport(observability.Named(logger, "mcp.transport"))
	tools := mcp.NewRegistry()
	approvals := mcp.NewApprovalService(st)
	mcpClient := mcp.NewClient(transport, tools, approvals, observability.Named(logger, "mcp"))

	var servers []mcp.ServerConfig
	if err := settings.DecodeInto("mcp.servers", &servers); err != nil {
		return nil, fmt.Errorf("decode mcp.servers: %w", err)
	}
	if err := mcpClient.DiscoverAll(ctx, servers); err != nil {
		logger.Warn("mcp tool discovery failed", "error", err)
	}

	sessions, err := buildSessionStore(settings)
	if err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}

	orch := orchestrator.New(st, sessions, models, mcpClient, orchestrator.Config{
		ContextMessageLimit: settings.Int("context_message_limit", 20),
		DefaultSystemPrompt: settings.String("default_system_prompt", ""),
		EnableThinkingMode:  settings.Bool("enable_thinking_mode", false),
		ApprovalTimeout:     time.Duration(settings.Int("mcp.approval_timeout_seconds", 300)) * time.Second,
		SessionTTL:          time.Duration(settings.Int("stream_session_ttl_seconds", 300)) * time.Second,
	}, observability.Named(logger, "orchestrator"))

	var metrics *observability.Metrics
	if settings.Bool("metrics.enabled", true) {
		metrics = observability.NewMetrics()
	}

	validator, err := buildValidator(ctx, settings, logger)
	if err != nil {
		return nil, fmt.Errorf("init auth validator: %w", err)
	}

	return &dependencies{
		store: st, models: models, mcpClient: mcpClient, orchestrator: orch, metrics: metrics, validator: validator,
	}, nil
}

func driverForDialect(dialect string) string {
	switch dialect {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

// registerAdapters wires every configured LLM provider into the registry,
// per SPEC_FULL.md's llm_providers.* configuration keys. A provider with no
// configuration is simply left unregistered, not an error.
func registerAdapters(models *llm.Registry, settings *config.Settings, logger hclog.Logger) {
	if settings.Raw("llm_providers.openai").Exists() {
		cfg := openai.Config{
			APIKey:  settings.String("llm_providers.openai.api_key", ""),
			BaseURL: settings.String("llm_providers.openai.base_url", ""),
			Enabled: settings.Bool("llm_providers.openai.enabled", true),
			Models:  settings.StringSlice("llm_providers.openai.models", nil),
		}
		if err := models.Register("openai", openai.New(cfg, observability.Named(logger, "openai"))); err != nil {
			logger.Warn("register openai adapter failed", "error", err)
		}
	}
	if settings.Raw("llm_providers.anthropic").Exists() {
		cfg := anthropic.Config{
			APIKey:  settings.String("llm_providers.anthropic.api_key", ""),
			Enabled: settings.Bool("llm_providers.anthropic.enabled", true),
			Models:  settings.StringSlice("llm_providers.anthropic.models", nil),
		}
		if err := models.Register("anthropic", anthropic.New(cfg, observability.Named(logger, "anthropic"))); err != nil {
			logger.Warn("register anthropic adapter failed", "error", err)
		}
	}
	if settings.Raw("llm_providers.gemini").Exists() {
		cfg := gemini.Config{
			APIKey:  settings.String("llm_providers.gemini.api_key", ""),
			Enabled: settings.Bool("llm_providers.gemini.enabled", true),
			Models:  settings.StringSlice("llm_providers.gemini.models", nil),
		}
		if err := models.Register("gemini", gemini.New(cfg, observability.Named(logger, "gemini"))); err != nil {
			logger.Warn("register gemini adapter failed", "error", err)
		}
	}
	if settings.Raw("llm_providers.ollama").Exists() {
		cfg := ollama.Config{
			BaseURL: settings.String("llm_providers.ollama.base_url", "http://localhost:11434"),
			Enabled: settings.Bool("llm_providers.ollama.enabled", true),
		}
		if err := models.Register("ollama", ollama.New(cfg, observability.Named(logger, "ollama"))); err != nil {
			logger.Warn("register ollama adapter failed", "error", err)
		}
	}
}

func buildSessionStore(settings *config.Settings) (sessionstore.Store, error) {
	redisURL := settings.String("redis_url", "")
	if redisURL == "" {
		return sessionstore.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis_url: %w", err)
	}
	return sessionstore.NewRedisStore(redis.NewClient(opts)), nil
}

func buildValidator(ctx context.Context, settings *config.Settings, logger hclog.Logger) (authn.Validator, error) {
	jwksURL := settings.String("auth.jwks_url", "")
	if jwksURL == "" {
		logger.Warn("auth.jwks_url not configured, running with authentication disabled (demo mode)")
		return nil, nil
	}
	return authn.NewJWTValidator(ctx, authn.Config{
		JWKSURL:  jwksURL,
		Issuer:   settings.String("auth.issuer", ""),
		Audience: settings.String("auth.audience", ""),
	}, observability.Named(logger, "auth"))
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gatewayd"),
		kong.Description("Retrieval-augmented chat gateway server."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
