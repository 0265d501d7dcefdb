package detector

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BoundedClient wraps a Client with a semaphore so at most maxConcurrent
// extractions run at once. Extraction is CPU-bound on the inference side; a
// burst beyond the bound fails fast with ErrBusy instead of queueing.
type BoundedClient struct {
	inner Client
	sem   *semaphore.Weighted
}

// NewBoundedClient wraps inner so at most maxConcurrent Detect calls run
// concurrently.
func NewBoundedClient(inner Client, maxConcurrent int) *BoundedClient {
	return &BoundedClient{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Detect acquires a pool slot without blocking, then delegates.
// Returns ErrBusy when all slots are taken.
func (c *BoundedClient) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	if !c.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer c.sem.Release(1)

	return c.inner.Detect(ctx, image)
}

// Health delegates without consuming a pool slot.
func (c *BoundedClient) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}
