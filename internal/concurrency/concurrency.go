package concurrency

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

/*
Controller
Specialized component bounding how many fetches run at once, at two
levels: a global cap across the whole crawl and a per-host cap so one
slow or large host cannot starve workers assigned to other hosts.

Acquire order is fixed: global first, then per-host. Release order is
the reverse. This prevents a deadlock where many tasks hold per-host
permits and starve the global pool waiting on a permit none of them
can release first.
*/

// Controller bounds concurrent fetches globally and per host. It is
// safe for concurrent use; per-host semaphores are created lazily and
// never removed during a crawl.
type Controller struct {
	global *semaphore.Weighted

	mu           sync.Mutex
	perHostLimit int64
	perHost      map[string]*semaphore.Weighted
}

// NewController returns a Controller allowing up to maxConcurrent
// fetches in flight at once, and up to perHostConcurrent of those
// against any single host. A zero perHostConcurrent means no per-host
// cap beyond the global one.
func NewController(maxConcurrent, perHostConcurrent int) *Controller {
	return &Controller{
		global:       semaphore.NewWeighted(int64(max(maxConcurrent, 1))),
		perHostLimit: int64(perHostConcurrent),
		perHost:      make(map[string]*semaphore.Weighted),
	}
}

// Acquire blocks until both the global and host permits are available,
// or ctx is done. On success, the caller must call Release with the
// same host once it is finished.
func (c *Controller) Acquire(ctx context.Context, host string) error {
	if err := c.global.Acquire(ctx, 1); err != nil {
		return err
	}

	if c.perHostLimit <= 0 {
		return nil
	}

	hostSem := c.hostSemaphore(host)
	if err := hostSem.Acquire(ctx, 1); err != nil {
		c.global.Release(1)
		return err
	}
	return nil
}

// Release returns host's permits in the reverse order they were
// acquired: per-host first, then global.
func (c *Controller) Release(host string) {
	if c.perHostLimit > 0 {
		c.hostSemaphore(host).Release(1)
	}
	c.global.Release(1)
}

func (c *Controller) hostSemaphore(host string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()

	sem, ok := c.perHost[host]
	if !ok {
		sem = semaphore.NewWeighted(c.perHostLimit)
		c.perHost[host] = sem
	}
	return sem
}
