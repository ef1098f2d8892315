package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/comfyq/internal/providers"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

// Poller waits for a submitted prompt to reach a terminal state.
type Poller interface {
	// Await queries the engine's history until outputs appear. observe, when
	// non-nil, is called before each query with the 1-based attempt number.
	// It returns the outputs and the number of queries issued.
	Await(ctx context.Context, promptID string, observe func(attempt int)) (domain.ExecutionOutputs, int, error)
}

type poller struct {
	engine      providers.EngineClient
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewPoller queries every interval. maxAttempts <= 0 means no ceiling; the
// context deadline then bounds the wait.
func NewPoller(engine providers.EngineClient, interval time.Duration, maxAttempts int, logger *slog.Logger) Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &poller{engine: engine, interval: interval, maxAttempts: maxAttempts, logger: logger}
}

func (p *poller) Await(ctx context.Context, promptID string, observe func(attempt int)) (domain.ExecutionOutputs, int, error) {
	attempt := 1
	for ; p.maxAttempts <= 0 || attempt <= p.maxAttempts; attempt++ {
		if observe != nil {
			observe(attempt)
		}
		outputs, done, err := p.engine.History(ctx, promptID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, attempt, p.timeout(ctx, promptID, attempt)
			}
			return nil, attempt, err
		}
		if done {
			return outputs, attempt, nil
		}
		p.logger.Debug("prompt pending", "prompt_id", promptID, "attempt", attempt)
		if attempt == p.maxAttempts {
			break
		}
		if err := sleepOrDone(ctx, p.interval); err != nil {
			return nil, attempt, p.timeout(ctx, promptID, attempt)
		}
	}
	return nil, p.maxAttempts, &domain.Error{Kind: domain.KindExecutionTimeout, PromptID: promptID, Attempts: p.maxAttempts}
}

// timeout reports a deadline as ExecutionTimeout; plain cancellation keeps the
// context error in the chain.
func (p *poller) timeout(ctx context.Context, promptID string, attempts int) error {
	derr := &domain.Error{Kind: domain.KindExecutionTimeout, PromptID: promptID, Attempts: attempts}
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		derr.Err = ctx.Err()
	}
	return derr
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
