package persistence

import (
	"context"
	"errors"

	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

var (
	// ErrNotFound is returned when an invocation id is unknown or has expired.
	ErrNotFound = errors.New("not found")
)

// PluginPersistence is a ledger backend selected by name (see RegisterProvider).
type PluginPersistence interface {
	// Invocations returns the invocation ledger
	Invocations() InvocationStorage

	// Health checks if the backend is reachable
	Health(ctx context.Context) error

	// Close releases resources held by the backend
	Close() error
}

// InvocationStorage keeps one record per tool invocation for the retention window.
type InvocationStorage interface {
	// Save creates or replaces the record and moves it to its status index
	Save(ctx context.Context, inv *domain.Invocation) error

	// Get returns the record or ErrNotFound
	Get(ctx context.Context, id string) (*domain.Invocation, error)

	// ListActive returns up to limit PENDING/RUNNING records, oldest first
	ListActive(ctx context.Context, limit int) ([]*domain.Invocation, error)

	// CountByStatus reports retained records per status
	CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int64, error)
}

// Statuses lists every status in lifecycle order.
var Statuses = []domain.InvocationStatus{
	domain.InvocationPending,
	domain.InvocationRunning,
	domain.InvocationCompleted,
	domain.InvocationFailed,
}
