package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      int    `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	// ComfyBaseURL is where the server reaches the engine. ComfyPublicURL, when
	// set, is the base of the /view URLs handed back to callers.
	ComfyBaseURL         string `yaml:"comfyBaseUrl"`
	ComfyPublicURL       string `yaml:"comfyPublicUrl"`
	EngineTimeoutSeconds int    `yaml:"engineTimeoutSeconds"`

	// Empty means the embedded catalog.
	ToolsFile    string `yaml:"toolsFile"`
	WorkflowsDir string `yaml:"workflowsDir"`

	PollIntervalMs           int `yaml:"pollIntervalMs"`
	PollMaxAttempts          int `yaml:"pollMaxAttempts"`
	InvocationTimeoutSeconds int `yaml:"invocationTimeoutSeconds"`

	LedgerBackend    string `yaml:"ledgerBackend"`
	LedgerTTLSeconds int    `yaml:"ledgerTtlSeconds"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	RedisDB          int    `yaml:"redisDb"`

	AuthProvider  string   `yaml:"authProvider"` // "" (disabled) | static | jwt
	AuthToken     string   `yaml:"authToken"`
	AuthScopes    []string `yaml:"authScopes"`
	AuthJWTSecret string   `yaml:"authJwtSecret"`
	AuthIssuer    string   `yaml:"authIssuer"`
	AuthAudience  string   `yaml:"authAudience"`

	WebhookHmacSecret     string `yaml:"webhookHmacSecret"`
	WebhookTimeoutSeconds int    `yaml:"webhookTimeoutSeconds"`

	TracingEnabled   bool    `yaml:"tracingEnabled"`
	OTLPEndpoint     string  `yaml:"otlpEndpoint"`
	OTLPInsecure     bool    `yaml:"otlpInsecure"`
	TraceSampleRatio float64 `yaml:"traceSampleRatio"`
}

// LoadConfig reads filePath, then applies env overrides and defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

// LoadConfigOptional behaves like LoadConfig but treats an empty path or a
// missing file as an empty document.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return parse(nil)
	}
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var c Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	c.ApplyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	envInt("PORT", &c.Port)
	envString("ENV", &c.Env)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)

	envString("COMFY_BASE_URL", &c.ComfyBaseURL)
	envString("COMFY_PUBLIC_URL", &c.ComfyPublicURL)
	envInt("ENGINE_TIMEOUT_SECONDS", &c.EngineTimeoutSeconds)
	envString("TOOLS_FILE", &c.ToolsFile)
	envString("WORKFLOWS_DIR", &c.WorkflowsDir)

	envInt("POLL_INTERVAL_MS", &c.PollIntervalMs)
	envInt("POLL_MAX_ATTEMPTS", &c.PollMaxAttempts)
	envInt("INVOCATION_TIMEOUT_SECONDS", &c.InvocationTimeoutSeconds)

	envString("LEDGER_BACKEND", &c.LedgerBackend)
	envInt("LEDGER_TTL_SECONDS", &c.LedgerTTLSeconds)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envInt("REDIS_DB", &c.RedisDB)

	envString("AUTH_PROVIDER", &c.AuthProvider)
	envString("AUTH_TOKEN", &c.AuthToken)
	if v := os.Getenv("AUTH_SCOPES"); v != "" {
		c.AuthScopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	envString("AUTH_JWT_SECRET", &c.AuthJWTSecret)
	envString("AUTH_ISSUER", &c.AuthIssuer)
	envString("AUTH_AUDIENCE", &c.AuthAudience)

	envString("WEBHOOK_HMAC_SECRET", &c.WebhookHmacSecret)
	envInt("WEBHOOK_TIMEOUT_SECONDS", &c.WebhookTimeoutSeconds)

	envBool("TRACING_ENABLED", &c.TracingEnabled)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)
	envBool("OTEL_EXPORTER_OTLP_INSECURE", &c.OTLPInsecure)
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.TraceSampleRatio = f
		}
	}
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.ComfyBaseURL == "" {
		c.ComfyBaseURL = "http://localhost:8188"
	}
	c.ComfyBaseURL = strings.TrimRight(c.ComfyBaseURL, "/")
	c.ComfyPublicURL = strings.TrimRight(c.ComfyPublicURL, "/")
	if c.EngineTimeoutSeconds <= 0 {
		c.EngineTimeoutSeconds = 30
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 1000
	}
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = 600
	}
	if c.InvocationTimeoutSeconds <= 0 {
		c.InvocationTimeoutSeconds = 900
	}
	if c.LedgerBackend == "" {
		c.LedgerBackend = "memory"
	}
	c.LedgerBackend = strings.ToLower(strings.TrimSpace(c.LedgerBackend))
	if c.LedgerTTLSeconds <= 0 {
		c.LedgerTTLSeconds = 86400
	}
	if c.RedisAddr == "" && c.LedgerBackend == "redis" {
		c.RedisAddr = "localhost:6379"
	}
	c.AuthProvider = strings.ToLower(strings.TrimSpace(c.AuthProvider))
	if c.AuthProvider == "none" {
		c.AuthProvider = ""
	}
	if c.WebhookTimeoutSeconds <= 0 {
		c.WebhookTimeoutSeconds = 10
	}
}

func (c *Config) Validate() error {
	var errs []string
	dev := strings.EqualFold(strings.TrimSpace(c.Env), "dev")

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	if !validHTTPURL(c.ComfyBaseURL) {
		errs = append(errs, "comfyBaseUrl must be a valid http(s) URL")
	}
	if c.ComfyPublicURL != "" && !validHTTPURL(c.ComfyPublicURL) {
		errs = append(errs, "comfyPublicUrl must be a valid http(s) URL")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, "logFormat must be json or text")
	}
	switch c.LedgerBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, "redisAddr is required for the redis ledger")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledgerBackend %q is not supported (memory, redis)", c.LedgerBackend))
	}
	switch c.AuthProvider {
	case "":
		if !dev {
			errs = append(errs, "authProvider is required in non-dev")
		}
	case "static":
		if strings.TrimSpace(c.AuthToken) == "" {
			errs = append(errs, "authToken is required for the static auth provider")
		}
	case "jwt":
		if strings.TrimSpace(c.AuthJWTSecret) == "" {
			errs = append(errs, "authJwtSecret is required for the jwt auth provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("authProvider %q is not supported (static, jwt)", c.AuthProvider))
	}
	if strings.TrimSpace(c.WebhookHmacSecret) == "" && !dev {
		errs = append(errs, "webhookHmacSecret is required in non-dev")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, "traceSampleRatio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ViewBaseURL is the base of artifact URLs returned to callers.
func (c *Config) ViewBaseURL() string {
	if c.ComfyPublicURL != "" {
		return c.ComfyPublicURL
	}
	return c.ComfyBaseURL
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) InvocationTimeout() time.Duration {
	return time.Duration(c.InvocationTimeoutSeconds) * time.Second
}

func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.EngineTimeoutSeconds) * time.Second
}

func (c *Config) LedgerTTL() time.Duration {
	return time.Duration(c.LedgerTTLSeconds) * time.Second
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}
