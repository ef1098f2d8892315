package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/osvaldoandrade/comfyq/catalog"
	"github.com/osvaldoandrade/comfyq/internal/metrics"
	"github.com/osvaldoandrade/comfyq/internal/middleware"
	"github.com/osvaldoandrade/comfyq/internal/providers"
	"github.com/osvaldoandrade/comfyq/internal/resolver"
	"github.com/osvaldoandrade/comfyq/internal/services"
	"github.com/osvaldoandrade/comfyq/internal/tools"
	"github.com/osvaldoandrade/comfyq/internal/tracing"
	"github.com/osvaldoandrade/comfyq/internal/workflow"
	"github.com/osvaldoandrade/comfyq/pkg/auth"
	_ "github.com/osvaldoandrade/comfyq/pkg/auth/jwt"
	_ "github.com/osvaldoandrade/comfyq/pkg/auth/static"
	"github.com/osvaldoandrade/comfyq/pkg/config"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"
	_ "github.com/osvaldoandrade/comfyq/pkg/persistence/memory"
	_ "github.com/osvaldoandrade/comfyq/pkg/persistence/redis"

	"github.com/gin-gonic/gin"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Logger      *slog.Logger
	Tools       services.ToolService
	Invocations services.InvocationService
	Models      services.ModelCatalog
	Ledger      persistence.PluginPersistence
	Validator   auth.Validator

	// TracingShutdown flushes the trace exporter; it is a no-op when tracing is off.
	TracingShutdown func(context.Context) error

	comfy     providers.EngineClient
	logOutput io.Writer
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom bearer validator instead of the configured provider
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

// WithLedger sets a custom invocation ledger instead of the configured backend
func WithLedger(ledger persistence.PluginPersistence) ApplicationOption {
	return func(app *Application) error {
		app.Ledger = ledger
		return nil
	}
}

// WithEngineClient replaces the HTTP client used to reach the engine
func WithEngineClient(client providers.EngineClient) ApplicationOption {
	return func(app *Application) error {
		app.comfy = client
		return nil
	}
}

// WithLogOutput redirects logs. The MCP stdio server needs stdout for protocol traffic.
func WithLogOutput(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.logOutput = w
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg, logOutput: os.Stdout}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	app.Logger = newLogger(cfg, app.logOutput)
	slog.SetDefault(app.Logger)
	logger := app.Logger

	app.TracingShutdown, _ = tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "comfyq",
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)

	table, err := loadTable(cfg)
	if err != nil {
		return nil, err
	}
	templates := workflow.NewTemplateStore(catalog.Workflows())
	if cfg.WorkflowsDir != "" {
		templates = workflow.NewDirTemplateStore(cfg.WorkflowsDir)
	}

	if app.comfy == nil {
		app.comfy = providers.NewComfyClient(cfg.ComfyBaseURL, cfg.EngineTimeout())
	}
	if app.Ledger == nil {
		ledger, err := persistence.NewPersistence(
			persistence.ProviderConfig{Type: cfg.LedgerBackend, Config: ledgerConfig(cfg)},
			persistence.PluginConfig{Retention: cfg.LedgerTTL()},
		)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		app.Ledger = ledger
	}
	metrics.RegisterLedgerCollector(app.Ledger.Invocations(), logger)

	modelsCtx, cancel := context.WithTimeout(context.Background(), cfg.EngineTimeout())
	app.Models = services.NewModelCatalog(modelsCtx, app.comfy, logger)
	cancel()

	app.Tools = services.NewToolService(
		table,
		templates,
		app.comfy,
		services.NewPoller(app.comfy, cfg.PollInterval(), cfg.PollMaxAttempts, logger),
		resolver.New(cfg.ViewBaseURL()),
		app.Models,
		cfg.InvocationTimeout(),
		logger,
	)
	webhook := services.NewCompletionWebhook(logger, cfg.WebhookHmacSecret, cfg.WebhookTimeout())
	app.Invocations = services.NewInvocationService(app.Tools, app.Ledger.Invocations(), webhook, logger)

	if app.Validator == nil && cfg.AuthProvider != "" {
		validator, err := auth.NewValidator(auth.ProviderConfig{
			Type:   cfg.AuthProvider,
			Config: authConfig(cfg),
		})
		if err != nil {
			return nil, err
		}
		app.Validator = validator
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.TracingMiddleware("comfyq"), middleware.LoggerMiddleware(logger))
	app.Engine = engine

	logger.Info("application ready",
		"tools", table.Len(),
		"engine", cfg.ComfyBaseURL,
		"ledger", cfg.LedgerBackend,
		"auth", cfg.AuthProvider,
		"models", len(app.Models.Models()))
	return app, nil
}

// Close releases the ledger connection.
func (app *Application) Close() error {
	if app.Ledger == nil {
		return nil
	}
	return app.Ledger.Close()
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "comfyq", "env", cfg.Env)
}

func loadTable(cfg *config.Config) (*tools.Table, error) {
	if cfg.ToolsFile != "" {
		return tools.LoadFile(cfg.ToolsFile)
	}
	return tools.Load(catalog.ToolsYAML())
}

func ledgerConfig(cfg *config.Config) json.RawMessage {
	if cfg.LedgerBackend != "redis" {
		return nil
	}
	b, _ := json.Marshal(map[string]any{
		"addr":     cfg.RedisAddr,
		"password": cfg.RedisPassword,
		"db":       cfg.RedisDB,
	})
	return b
}

func authConfig(cfg *config.Config) json.RawMessage {
	var v map[string]any
	switch cfg.AuthProvider {
	case "static":
		v = map[string]any{"token": cfg.AuthToken, "scopes": cfg.AuthScopes}
	case "jwt":
		v = map[string]any{"secret": cfg.AuthJWTSecret, "issuer": cfg.AuthIssuer, "audience": cfg.AuthAudience}
	default:
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}
