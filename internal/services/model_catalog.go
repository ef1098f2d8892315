package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/osvaldoandrade/comfyq/internal/providers"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

// ModelCatalog caches the checkpoint names the engine can load.
type ModelCatalog interface {
	// Models returns a snapshot of the cached list.
	Models() []string
	// Refresh re-fetches the list. On failure the cached list is kept.
	Refresh(ctx context.Context) ([]string, error)
	// Normalize strips one trailing quote from name and, when the cached list is
	// non-empty, rejects names missing from it with UnknownModel.
	Normalize(name string) (string, error)
}

type modelCatalog struct {
	engine providers.EngineClient
	logger *slog.Logger

	mu     sync.RWMutex
	models []string
	index  map[string]struct{}
}

// NewModelCatalog fetches the list once. A failed fetch leaves the catalog empty,
// which disables model validation until Refresh succeeds.
func NewModelCatalog(ctx context.Context, engine providers.EngineClient, logger *slog.Logger) ModelCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &modelCatalog{engine: engine, logger: logger}
	if _, err := c.Refresh(ctx); err != nil {
		logger.Warn("model list unavailable; model names will not be validated", "err", err)
	}
	return c
}

func (c *modelCatalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.models...)
}

func (c *modelCatalog) Refresh(ctx context.Context) ([]string, error) {
	models, err := c.engine.CheckpointModels(ctx)
	if err != nil {
		return c.Models(), fmt.Errorf("fetch checkpoint models: %w", err)
	}
	index := make(map[string]struct{}, len(models))
	for _, m := range models {
		index[m] = struct{}{}
	}
	c.mu.Lock()
	c.models = append([]string(nil), models...)
	c.index = index
	c.mu.Unlock()
	c.logger.Info("model list loaded", "count", len(models))
	return models, nil
}

func (c *modelCatalog) Normalize(name string) (string, error) {
	if strings.HasSuffix(name, "'") {
		name = strings.TrimSuffix(name, "'")
		c.logger.Info("corrected model name", "model", name)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.index) == 0 {
		return name, nil
	}
	if _, ok := c.index[name]; !ok {
		return "", &domain.Error{Kind: domain.KindUnknownModel, Param: name}
	}
	return name, nil
}
