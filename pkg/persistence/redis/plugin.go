package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/osvaldoandrade/comfyq/internal/providers"
	"github.com/osvaldoandrade/comfyq/internal/repository"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client      *redis.Client
	invocations persistence.InvocationStorage
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if len(config.Config) > 0 {
		if err := json.Unmarshal(config.Config, &cfg); err != nil {
			return nil, fmt.Errorf("redis ledger config: %w", err)
		}
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis ledger config: addr is required")
	}

	client := providers.NewRedisProvider(cfg.Addr, cfg.Password, cfg.DB)
	return &Plugin{
		client:      client,
		invocations: repository.NewInvocationRepository(client, config.Retention),
	}, nil
}

func (p *Plugin) Invocations() persistence.InvocationStorage { return p.invocations }

// Client exposes the underlying connection.
func (p *Plugin) Client() *redis.Client { return p.client }

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
