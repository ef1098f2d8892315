package services

import (
	"context"
	"sync"

	"github.com/osvaldoandrade/comfyq/internal/workflow"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

// fakeEngine scripts engine replies: History returns pending pendingPolls times,
// then outputs.
type fakeEngine struct {
	mu sync.Mutex

	submitErr    error
	promptID     string
	pendingPolls int
	outputs      domain.ExecutionOutputs
	historyErr   error
	models       []string
	modelsErr    error

	submitted   [][]byte
	clientIDs   []string
	historyHits int
}

func (f *fakeEngine) Submit(ctx context.Context, g *workflow.Graph, clientID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, append([]byte(nil), g.Bytes()...))
	f.clientIDs = append(f.clientIDs, clientID)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if f.promptID == "" {
		return "prompt-1", nil
	}
	return f.promptID, nil
}

func (f *fakeEngine) History(ctx context.Context, promptID string) (domain.ExecutionOutputs, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyHits++
	if f.historyErr != nil {
		return nil, false, f.historyErr
	}
	if f.historyHits <= f.pendingPolls {
		return nil, false, nil
	}
	return f.outputs, true, nil
}

func (f *fakeEngine) CheckpointModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.models, f.modelsErr
}

func (f *fakeEngine) BaseURL() string { return "http://engine:8188" }

func (f *fakeEngine) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeEngine) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyHits
}
