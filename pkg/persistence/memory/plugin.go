package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"
)

// Plugin implements PluginPersistence in process memory. Records are lost on
// restart; use the redis backend when invocations must survive one.
type Plugin struct {
	mu        sync.RWMutex
	records   map[string]domain.Invocation
	retention time.Duration
	now       func() time.Time
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return newPlugin(config.Retention, time.Now), nil
}

func newPlugin(retention time.Duration, now func() time.Time) *Plugin {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Plugin{
		records:   make(map[string]domain.Invocation),
		retention: retention,
		now:       now,
	}
}

func (p *Plugin) Invocations() persistence.InvocationStorage { return p }

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error { return nil }

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error { return nil }

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

func (p *Plugin) expired(inv domain.Invocation) bool {
	return p.now().Sub(inv.UpdatedAt) > p.retention
}

func (p *Plugin) Save(ctx context.Context, inv *domain.Invocation) error {
	rec := *inv
	rec.Artifacts = append([]string(nil), inv.Artifacts...)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = p.now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[rec.ID] = rec
	for id, r := range p.records {
		if p.expired(r) {
			delete(p.records, id)
		}
	}
	return nil
}

func (p *Plugin) Get(ctx context.Context, id string) (*domain.Invocation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[id]
	if !ok || p.expired(rec) {
		return nil, persistence.ErrNotFound
	}
	rec.Artifacts = append([]string(nil), rec.Artifacts...)
	return &rec, nil
}

func (p *Plugin) ListActive(ctx context.Context, limit int) ([]*domain.Invocation, error) {
	p.mu.RLock()
	var out []*domain.Invocation
	for _, rec := range p.records {
		if rec.Status.Terminal() || p.expired(rec) {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Plugin) CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int64, error) {
	counts := make(map[domain.InvocationStatus]int64, len(persistence.Statuses))
	for _, s := range persistence.Statuses {
		counts[s] = 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, rec := range p.records {
		if !p.expired(rec) {
			counts[rec.Status]++
		}
	}
	return counts, nil
}
