package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupRepo(t *testing.T, retention time.Duration) (context.Context, *miniredis.Miniredis, *redis.Client, *invocationRedisRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewInvocationRepository(rdb, retention).(*invocationRedisRepo)
	return context.Background(), mr, rdb, repo
}

func TestInvocationSaveAndGet(t *testing.T) {
	ctx, mr, _, repo := setupRepo(t, time.Hour)
	now := time.Now().UTC()

	inv := &domain.Invocation{
		ID:        "inv-1",
		Tool:      "generate_image",
		Template:  "flux-dev-workflow",
		Mode:      "async",
		Status:    domain.InvocationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Save(ctx, inv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("comfyq:invocations:inv-1"); ttl != time.Hour {
		t.Fatalf("record TTL = %v", ttl)
	}
	if pending, _ := mr.ZMembers("comfyq:invocations:status:PENDING"); len(pending) != 1 {
		t.Fatalf("PENDING index = %v", pending)
	}

	inv.Status = domain.InvocationCompleted
	inv.PromptID = "p-1"
	inv.ResultKey = "image_url"
	inv.URL = "http://engine:8188/view?filename=a.png&subfolder=&type=output"
	inv.UpdatedAt = now.Add(time.Second)
	if err := repo.Save(ctx, inv); err != nil {
		t.Fatalf("Save completed: %v", err)
	}

	got, err := repo.Get(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.InvocationCompleted || got.URL != inv.URL || got.PromptID != "p-1" {
		t.Fatalf("record = %+v", got)
	}

	members, _ := mr.ZMembers("comfyq:invocations:status:COMPLETED")
	if len(members) != 1 || members[0] != "inv-1" {
		t.Fatalf("COMPLETED index = %v", members)
	}
	if pending, _ := mr.ZMembers("comfyq:invocations:status:PENDING"); len(pending) != 0 {
		t.Fatalf("record still indexed as PENDING: %v", pending)
	}
}

func TestInvocationGetNotFound(t *testing.T) {
	ctx, mr, _, repo := setupRepo(t, time.Minute)
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = repo.Save(ctx, &domain.Invocation{ID: "short", Status: domain.InvocationFailed})
	mr.FastForward(2 * time.Minute)
	if _, err := repo.Get(ctx, "short"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected expired record to be gone, got %v", err)
	}
}

func TestInvocationListActiveAndCounts(t *testing.T) {
	ctx, _, _, repo := setupRepo(t, time.Hour)
	base := time.Now().UTC()

	records := []*domain.Invocation{
		{ID: "b", Status: domain.InvocationRunning, CreatedAt: base.Add(2 * time.Second)},
		{ID: "a", Status: domain.InvocationPending, CreatedAt: base.Add(time.Second)},
		{ID: "c", Status: domain.InvocationCompleted, CreatedAt: base},
		{ID: "d", Status: domain.InvocationFailed, CreatedAt: base},
	}
	for _, inv := range records {
		inv.UpdatedAt = base
		if err := repo.Save(ctx, inv); err != nil {
			t.Fatalf("Save %s: %v", inv.ID, err)
		}
	}

	active, err := repo.ListActive(ctx, 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "b" {
		t.Fatalf("active = %v", ids(active))
	}
	if limited, _ := repo.ListActive(ctx, 1); len(limited) != 1 {
		t.Fatalf("limit not applied: %v", ids(limited))
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	for _, s := range persistence.Statuses {
		if counts[s] != 1 {
			t.Fatalf("counts = %v", counts)
		}
	}
}

func TestInvocationCountsIgnoreStaleIndexEntries(t *testing.T) {
	ctx, _, _, repo := setupRepo(t, time.Hour)
	old := time.Now().Add(-2 * time.Hour)
	_ = repo.Save(ctx, &domain.Invocation{ID: "stale", Status: domain.InvocationRunning, UpdatedAt: old})

	counts, _ := repo.CountByStatus(ctx)
	if counts[domain.InvocationRunning] != 0 {
		t.Fatalf("stale entry counted: %v", counts)
	}
	if active, _ := repo.ListActive(ctx, 0); len(active) != 0 {
		t.Fatalf("stale entry listed: %v", ids(active))
	}
}

func ids(invs []*domain.Invocation) []string {
	out := make([]string, len(invs))
	for i, inv := range invs {
		out[i] = inv.ID
	}
	return out
}
