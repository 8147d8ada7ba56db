package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker implements locker.Locker with session-level advisory locks. Each held lock
// pins one pooled connection until unlock, so it also serializes across processes.
type Locker struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if l.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		// A cancelled wait may leave the connection mid-protocol; never return it to the pool.
		raw := conn.Hijack()
		_ = raw.Close(context.Background())
		return nil, fmt.Errorf("advisory lock %q: %w", key, err)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			// Closing the session drops every advisory lock it holds.
			raw := conn.Hijack()
			_ = raw.Close(context.Background())
			return
		}
		conn.Release()
	}, nil
}
