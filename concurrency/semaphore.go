// Package concurrency provides the bounded-parallelism primitive workflows
// use for fan-out over the upstream: convergent.search launching
// parallel webset searches, research.verifiedCollection's 3-concurrent
// research calls, and semantic.cron's per-lens branches.
package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore bounding concurrent access to a
// resource. It wraps golang.org/x/sync/semaphore.Weighted with a simpler,
// whole-unit-only API matching how every caller in this module acquires it
// (one slot per branch).
type Semaphore struct {
	weighted *semaphore.Weighted
	limit    int64
}

// New constructs a Semaphore allowing up to n concurrent holders. n must be
// >= 1.
func New(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{weighted: semaphore.NewWeighted(int64(n)), limit: int64(n)}
}

// Limit returns the configured number of concurrent holders.
func (s *Semaphore) Limit() int { return int(s.limit) }

// Acquire blocks until a slot is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.weighted.Acquire(ctx, 1)
}

// TryAcquire acquires a slot without blocking, reporting whether it
// succeeded.
func (s *Semaphore) TryAcquire() bool {
	return s.weighted.TryAcquire(1)
}

// Release returns a slot to the semaphore.
func (s *Semaphore) Release() {
	s.weighted.Release(1)
}

// Run executes fns with concurrency bounded by the semaphore, returning the
// first error encountered (if any) after all launched goroutines have
// finished, via errgroup.Group semantics. A cancelled ctx (e.g. from an
// earlier failure) prevents further acquisitions from starting new work.
func (s *Semaphore) Run(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		if err := s.Acquire(gctx); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		g.Go(func() error {
			defer s.Release()
			return fn(gctx)
		})
	}
	return g.Wait()
}
