// Package worker runs indexed jobs on a bounded set of goroutines.
//
// Jobs are identified by their index in the caller's input, so callers keep
// input order by writing results into a pre-sized slice.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/faceid/pkg/logger"
)

// Job processes the item at index i. A returned error is logged and counted
// but does not stop the remaining jobs.
type Job func(ctx context.Context, i int) error

// Stats summarizes one Run.
type Stats struct {
	Jobs    int
	Failed  int
	Elapsed time.Duration
}

// Pool bounds how many jobs run at once.
type Pool struct {
	size   int
	name   string
	logger logger.Logger
}

// NewPool creates a pool of size workers. A size below 1 uses runtime.NumCPU().
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		size:   size,
		name:   "worker-pool",
		logger: logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.name != "worker-pool" {
		p.logger = p.logger.Named(p.name)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Run executes job for every index in [0, n) and waits for all started jobs.
// When ctx is canceled no further jobs are dispatched and ctx.Err() is returned.
func (p *Pool) Run(ctx context.Context, n int, job Job) (Stats, error) {
	start := time.Now()
	stats := Stats{Jobs: n}
	if n <= 0 {
		return stats, nil
	}

	workers := min(p.size, n)
	jobs := make(chan int)
	failures := make([]int, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			failures[id] = p.work(ctx, "worker-"+strconv.Itoa(id), jobs, job)
		}(w)
	}

	var err error
dispatch:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			err = fmt.Errorf("%s: dispatch stopped at %d/%d: %w", p.name, i, n, ctx.Err())
			break
		}
		select {
		case <-ctx.Done():
			err = fmt.Errorf("%s: dispatch stopped at %d/%d: %w", p.name, i, n, ctx.Err())
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for _, f := range failures {
		stats.Failed += f
	}
	stats.Elapsed = time.Since(start)
	return stats, err
}

// work drains jobs until the channel is closed and returns the failure count.
func (p *Pool) work(ctx context.Context, name string, jobs <-chan int, job Job) int {
	failed := 0
	for i := range jobs {
		if err := job(ctx, i); err != nil {
			failed++
			p.logger.Debug(ctx, "job failed",
				logger.String("worker", name),
				logger.Int("index", i),
				logger.Error(err),
			)
		}
	}
	return failed
}
