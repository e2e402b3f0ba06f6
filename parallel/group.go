// Package parallel contains ForEach, the in-process worker group with its
// collectives, and other concurrency primitives.
package parallel

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// ErrAborted is returned by collectives once another worker of the group failed.
var ErrAborted = errors.New("parallel group aborted")

// Group runs world workers in lockstep. Workers meet in collectives, which
// block until every worker has arrived.
type Group struct {
	world  int
	logger *log.Logger
	bar    *barrier
	slots  [][]float64
}

// NewGroup creates a group of world workers printing through logger.
func NewGroup(world int, logger *log.Logger) (*Group, error) {
	if world <= 0 {
		return nil, errors.Errorf("world size %d must be positive", world)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Group{
		world:  world,
		logger: logger,
		bar:    newBarrier(world),
		slots:  make([][]float64, world),
	}, nil
}

// World returns the number of workers.
func (g *Group) World() int {
	return g.world
}

// Run launches every worker and waits for all of them. When a worker
// returns an error the group is aborted and the first error that is not
// ErrAborted is returned.
func (g *Group) Run(ctx context.Context, worker func(ctx context.Context, r *Rank) error) error {
	errs := make([]error, g.world)
	ForEach(g.world, g.world, func(i int) {
		r := &Rank{g: g, rank: i}
		if err := worker(ctx, r); err != nil {
			errs[i] = err
			g.bar.abort()
		}
	})
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrAborted) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// Shard returns the contiguous range [lo, hi) of n elements owned by rank.
func Shard(n, world, rank int) (lo, hi int) {
	chunk := (n + world - 1) / world
	lo = min(rank*chunk, n)
	hi = min(lo+chunk, n)
	return
}

// barrier is a reusable barrier that can be aborted.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	count   int
	gen     uint64
	aborted bool
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return ErrAborted
	}
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.gen && !b.aborted {
		b.cond.Wait()
	}
	if gen == b.gen {
		return ErrAborted
	}
	return nil
}

func (b *barrier) abort() {
	b.mu.Lock()
	b.aborted = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
