package txn

import "context"

// Manager runs fn as one unit of persistence. Repositories called with the ctx
// handed to fn participate in the same unit.
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
