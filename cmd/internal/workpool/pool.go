// Package workpool bounds how many CPU-heavy hash computations run at once.
//
// bcrypt and Argon2id each cost tens to hundreds of milliseconds. Callers run
// them through a Pool so a burst of logins queues instead of saturating every
// core; waiting for a slot honors context cancellation.
package workpool

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// errStopSearch cancels the remaining Search work once a match is recorded.
var errStopSearch = errors.New("workpool: match found")

// Pool is a counting semaphore over hash workers. The zero value is not usable.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New returns a Pool with size slots. size <= 0 selects runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Do runs fn once a slot is free. It returns ctx.Err() if ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Search runs match(i) for i in [0, n) across the pool and returns the first
// index for which match reported true, or -1. Remaining work is skipped once
// a match is found.
func (p *Pool) Search(ctx context.Context, n int, match func(i int) bool) (int, error) {
	if n == 0 {
		return -1, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)

	found := make(chan int, 1)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return p.Do(gctx, func() error {
				if !match(i) {
					return nil
				}
				select {
				case found <- i:
				default:
				}
				return errStopSearch
			})
		})
	}

	err := g.Wait()
	select {
	case i := <-found:
		return i, nil
	default:
	}
	if err != nil && !errors.Is(err, errStopSearch) {
		return -1, err
	}
	return -1, ctx.Err()
}
