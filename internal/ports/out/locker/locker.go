package locker

import "context"

// Locker serializes work on a single aggregate.
//
// Lock blocks until the lock for key is held or ctx is done. The returned unlock
// func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
