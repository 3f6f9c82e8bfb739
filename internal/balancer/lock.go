package balancer

import "context"

// lock is a mutual-exclusion primitive whose acquisition can be abandoned.
// A buffered channel of capacity one holds the token while the lock is held.
type lock chan struct{}

func newLock() lock {
	return make(lock, 1)
}

// acquire blocks until the lock is held or ctx is done.
func (l lock) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees the lock. Must only be called by the holder.
func (l lock) release() {
	<-l
}
