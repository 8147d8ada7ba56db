package txn

import (
	"context"
	"sync"
)

// Manager serializes units of work. The memory repositories cannot roll back, so
// units must not interleave: a unit that fails halfway would otherwise expose its
// partial writes to a concurrent one. Calls must not nest.
type Manager struct {
	mu sync.Mutex
}

func NewManager() *Manager { return &Manager{} }

func (m *Manager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}
