package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/comfyq/internal/tracing"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
	"github.com/osvaldoandrade/comfyq/pkg/persistence"

	"github.com/google/uuid"
)

const (
	ModeSync   = "sync"
	ModeStream = "stream"
	ModeAsync  = "async"
	ModeMCP    = "mcp"
)

var ErrInvalidWebhook = errors.New("webhook must be an absolute http(s) URL")

// InvocationService records tool calls in the ledger. Sync and stream calls are
// recorded best effort; async calls are accepted, run in the background and
// reported through the ledger and an optional completion webhook.
type InvocationService interface {
	Run(ctx context.Context, name string, params domain.Params, mode string, opts ...InvokeOption) (domain.ToolResult, error)
	Start(ctx context.Context, name string, params domain.Params, webhook string) (*domain.Invocation, error)
	Get(ctx context.Context, id string) (*domain.Invocation, error)
	ListActive(ctx context.Context, limit int) ([]*domain.Invocation, error)
	// Wait blocks until background invocations finish or ctx ends.
	Wait(ctx context.Context) error
}

type invocationService struct {
	tools   ToolService
	ledger  persistence.InvocationStorage
	webhook CompletionWebhook
	logger  *slog.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

func NewInvocationService(tools ToolService, ledger persistence.InvocationStorage, webhook CompletionWebhook, logger *slog.Logger) InvocationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &invocationService{tools: tools, ledger: ledger, webhook: webhook, logger: logger, now: time.Now}
}

func (s *invocationService) newRecord(tool domain.ToolDefinition, mode string, status domain.InvocationStatus) *domain.Invocation {
	now := s.now().UTC()
	return &domain.Invocation{
		ID:        uuid.NewString(),
		Tool:      tool.Name,
		Template:  tool.Template,
		Mode:      mode,
		Status:    status,
		ResultKey: tool.ResultKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *invocationService) save(ctx context.Context, inv *domain.Invocation) {
	if err := s.ledger.Save(ctx, inv); err != nil {
		s.logger.Warn("ledger write failed", "invocation_id", inv.ID, "status", inv.Status, "err", err)
	}
}

func (s *invocationService) finish(inv *domain.Invocation, res domain.ToolResult, err error) {
	inv.UpdatedAt = s.now().UTC()
	if res.PromptID != "" {
		inv.PromptID = res.PromptID
	}
	if err != nil {
		inv.Status = domain.InvocationFailed
		inv.Error = err.Error()
		inv.ErrorKind = domain.KindOf(err)
		var derr *domain.Error
		if errors.As(err, &derr) && derr.PromptID != "" {
			inv.PromptID = derr.PromptID
		}
		return
	}
	inv.Status = domain.InvocationCompleted
	inv.URL = res.URL
	inv.Artifacts = res.Artifacts
}

func (s *invocationService) Run(ctx context.Context, name string, params domain.Params, mode string, opts ...InvokeOption) (domain.ToolResult, error) {
	tool, err := s.tools.Tool(name)
	if err != nil {
		return domain.ToolResult{}, err
	}
	inv := s.newRecord(tool, mode, domain.InvocationRunning)
	// The ledger outlives the request; a cancelled client must not skip the final write.
	ledgerCtx := context.WithoutCancel(ctx)
	s.save(ledgerCtx, inv)

	res, err := s.tools.Invoke(ctx, name, params, opts...)
	s.finish(inv, res, err)
	s.save(ledgerCtx, inv)
	if err != nil {
		return domain.ToolResult{}, err
	}
	res.InvocationID = inv.ID
	return res, nil
}

func (s *invocationService) Start(ctx context.Context, name string, params domain.Params, webhook string) (*domain.Invocation, error) {
	tool, err := s.tools.Tool(name)
	if err != nil {
		return nil, err
	}
	webhook = strings.TrimSpace(webhook)
	if webhook != "" {
		u, err := url.Parse(webhook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, ErrInvalidWebhook
		}
	}

	inv := s.newRecord(tool, ModeAsync, domain.InvocationPending)
	inv.Webhook = webhook
	inv.TraceParent, inv.TraceState = tracing.TraceContextStrings(ctx)
	if err := s.ledger.Save(ctx, inv); err != nil {
		return nil, err
	}

	snapshot := *inv
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAsync(snapshot, params)
	}()
	return inv, nil
}

func (s *invocationService) runAsync(inv domain.Invocation, params domain.Params) {
	ctx := tracing.ContextWithRemoteParent(context.Background(), inv.TraceParent, inv.TraceState)

	inv.Status = domain.InvocationRunning
	inv.UpdatedAt = s.now().UTC()
	s.save(ctx, &inv)

	res, err := s.tools.Invoke(ctx, inv.Tool, params, WithProgress(func(ev domain.ProgressEvent) {
		if ev.Stage == domain.StageQueued && ev.PromptID != "" {
			inv.PromptID = ev.PromptID
			inv.UpdatedAt = s.now().UTC()
			s.save(ctx, &inv)
		}
	}))
	s.finish(&inv, res, err)
	s.save(ctx, &inv)

	if s.webhook != nil && inv.Webhook != "" {
		_ = s.webhook.Deliver(ctx, inv)
	}
}

func (s *invocationService) Get(ctx context.Context, id string) (*domain.Invocation, error) {
	return s.ledger.Get(ctx, id)
}

func (s *invocationService) ListActive(ctx context.Context, limit int) ([]*domain.Invocation, error) {
	return s.ledger.ListActive(ctx, limit)
}

func (s *invocationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
