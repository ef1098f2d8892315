package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

type invocationRedisRepo struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewInvocationRepository stores each invocation as a JSON string that expires
// retention after its last update, plus one sorted set per status scored by
// update time.
func NewInvocationRepository(rdb *redis.Client, retention time.Duration) persistence.InvocationStorage {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &invocationRedisRepo{rdb: rdb, retention: retention, now: time.Now}
}

func (r *invocationRedisRepo) keyInvocation(id string) string {
	return fmt.Sprintf("comfyq:invocations:%s", id)
}

func (r *invocationRedisRepo) keyStatusIndex(s domain.InvocationStatus) string {
	return fmt.Sprintf("comfyq:invocations:status:%s", s)
}

func (r *invocationRedisRepo) cutoff() string {
	return strconv.FormatInt(r.now().Add(-r.retention).UnixMilli(), 10)
}

func (r *invocationRedisRepo) Save(ctx context.Context, inv *domain.Invocation) error {
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = r.now()
	}
	b, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invocation: %w", err)
	}
	score := float64(inv.UpdatedAt.UnixMilli())
	cutoff := "(" + r.cutoff()

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keyInvocation(inv.ID), b, r.retention)
		for _, s := range persistence.Statuses {
			key := r.keyStatusIndex(s)
			if s == inv.Status {
				pipe.ZAdd(ctx, key, &redis.Z{Score: score, Member: inv.ID})
			} else {
				pipe.ZRem(ctx, key, inv.ID)
			}
			pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save invocation: %w", err)
	}
	return nil
}

func (r *invocationRedisRepo) Get(ctx context.Context, id string) (*domain.Invocation, error) {
	js, err := r.rdb.Get(ctx, r.keyInvocation(id)).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET invocation: %w", err)
	}
	var inv domain.Invocation
	if err := json.Unmarshal([]byte(js), &inv); err != nil {
		return nil, fmt.Errorf("unmarshal invocation: %w", err)
	}
	return &inv, nil
}

func (r *invocationRedisRepo) ListActive(ctx context.Context, limit int) ([]*domain.Invocation, error) {
	var ids []string
	for _, s := range []domain.InvocationStatus{domain.InvocationPending, domain.InvocationRunning} {
		members, err := r.rdb.ZRangeByScore(ctx, r.keyStatusIndex(s), &redis.ZRangeBy{Min: r.cutoff(), Max: "+inf"}).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("redis ZRANGEBYSCORE %s: %w", s, err)
		}
		ids = append(ids, members...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keyInvocation(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET invocations: %w", err)
	}

	out := make([]*domain.Invocation, 0, len(vals))
	for _, v := range vals {
		js, ok := v.(string)
		if !ok || js == "" {
			continue
		}
		var inv domain.Invocation
		if err := json.Unmarshal([]byte(js), &inv); err != nil {
			continue
		}
		out = append(out, &inv)
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *invocationRedisRepo) CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int64, error) {
	cutoff := r.cutoff()
	pipe := r.rdb.Pipeline()
	cmds := make(map[domain.InvocationStatus]*redis.IntCmd, len(persistence.Statuses))
	for _, s := range persistence.Statuses {
		cmds[s] = pipe.ZCount(ctx, r.keyStatusIndex(s), cutoff, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis count invocations: %w", err)
	}
	counts := make(map[domain.InvocationStatus]int64, len(cmds))
	for s, c := range cmds {
		counts[s] = c.Val()
	}
	return counts, nil
}

func sortByCreated(invs []*domain.Invocation) {
	sort.SliceStable(invs, func(i, j int) bool { return invs[i].CreatedAt.Before(invs[j].CreatedAt) })
}
