package imaging

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Observer receives one call per finished compression.
type Observer interface {
	ObserveCompression(res *Result, inputBytes int, elapsed time.Duration, err error)
}

// Pool bounds the number of compressions running at once so that a burst of large uploads
// cannot starve unrelated requests of CPU.
type Pool struct {
	c   *Compressor
	sem *semaphore.Weighted
	obs Observer
}

// NewPool wraps c with at most workers concurrent compressions (one per CPU when workers <= 0).
// obs may be nil.
func NewPool(c *Compressor, workers int, obs Observer) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{c: c, sem: semaphore.NewWeighted(int64(workers)), obs: obs}
}

// Compress waits for a free slot and then compresses data.
// ctx only bounds the wait; a started compression always runs to completion.
func (p *Pool) Compress(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for compression slot: %w", err)
	}
	defer p.sem.Release(1)

	start := time.Now()
	res, err := p.c.Compress(data, mimeType)
	if p.obs != nil {
		p.obs.ObserveCompression(res, len(data), time.Since(start), err)
	}
	return res, err
}
