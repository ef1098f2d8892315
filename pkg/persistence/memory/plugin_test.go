package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"
)

func TestMemoryPluginRegistered(t *testing.T) {
	plugin, err := persistence.NewPersistence(persistence.ProviderConfig{Type: "memory"}, persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	defer plugin.Close()
	if err := plugin.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestMemoryInvocationLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPlugin(time.Hour, func() time.Time { return now })
	store := p.Invocations()
	ctx := context.Background()

	inv := &domain.Invocation{ID: "inv-1", Tool: "generate_image", Status: domain.InvocationPending, CreatedAt: now, UpdatedAt: now}
	if err := store.Save(ctx, inv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := &domain.Invocation{ID: "inv-2", Tool: "generate_video", Status: domain.InvocationRunning, CreatedAt: now.Add(time.Second), UpdatedAt: now}
	_ = store.Save(ctx, second)

	active, _ := store.ListActive(ctx, 0)
	if len(active) != 2 || active[0].ID != "inv-1" {
		t.Fatalf("active = %+v", active)
	}

	inv.Status = domain.InvocationCompleted
	inv.URL = "http://engine/view?filename=a.png&subfolder=&type=output"
	inv.Artifacts = []string{inv.URL}
	_ = store.Save(ctx, inv)
	inv.Artifacts[0] = "mutated"

	got, err := store.Get(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.InvocationCompleted || got.Artifacts[0] == "mutated" {
		t.Fatalf("stored record = %+v", got)
	}

	counts, _ := store.CountByStatus(ctx)
	if counts[domain.InvocationCompleted] != 1 || counts[domain.InvocationRunning] != 1 || counts[domain.InvocationPending] != 0 {
		t.Fatalf("counts = %v", counts)
	}

	active, _ = store.ListActive(ctx, 10)
	if len(active) != 1 || active[0].ID != "inv-2" {
		t.Fatalf("active after completion = %+v", active)
	}
}

func TestMemoryInvocationExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPlugin(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	_ = p.Save(ctx, &domain.Invocation{ID: "old", Status: domain.InvocationFailed, UpdatedAt: now})
	now = now.Add(2 * time.Minute)

	if _, err := p.Get(ctx, "old"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := p.Get(ctx, "never"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	counts, _ := p.CountByStatus(ctx)
	if counts[domain.InvocationFailed] != 0 {
		t.Fatalf("expired record still counted: %v", counts)
	}
}
